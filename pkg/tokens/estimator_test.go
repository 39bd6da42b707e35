package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicEstimate(t *testing.T) {
	h := NewHeuristic()

	t.Run("empty is zero", func(t *testing.T) {
		assert.Equal(t, 0, h.Estimate(""))
	})

	t.Run("single word", func(t *testing.T) {
		assert.Equal(t, 1, h.Estimate("dragon"))
	})

	t.Run("scales with words", func(t *testing.T) {
		short := h.Estimate("the dragon sleeps")
		long := h.Estimate("the dragon sleeps beneath the ancient mountain hoard")
		assert.Greater(t, long, short)
	})

	t.Run("punctuation counts", func(t *testing.T) {
		plain := h.Estimate("hello world")
		punct := h.Estimate("hello, world!!!")
		assert.Greater(t, punct, plain)
	})

	t.Run("long unbroken run floored by chars", func(t *testing.T) {
		run := strings.Repeat("a", 400)
		assert.GreaterOrEqual(t, h.Estimate(run), 100)
	})

	t.Run("never negative", func(t *testing.T) {
		assert.GreaterOrEqual(t, h.Estimate(" "), 0)
	})
}

func TestHeuristicTokenize(t *testing.T) {
	h := NewHeuristic()

	toks := h.Tokenize("a cat, sat")
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{"a", "cat", ",", "sat"}, texts)

	// IDs are positional
	for i, tok := range toks {
		assert.Equal(t, i, tok.ID)
	}

	assert.Empty(t, h.Tokenize(""))
}

func TestEstimatorFunc(t *testing.T) {
	fixed := EstimatorFunc(func(text string) int { return 7 })
	assert.Equal(t, 7, fixed.Estimate("anything"))
}
