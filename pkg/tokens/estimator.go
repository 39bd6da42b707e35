// Package tokens abstracts token counting for budget accounting.
//
// The activation engine only needs one operation: map a string to a
// non-negative integer token count. Implementations must be synchronous and
// in-process; the engine calls the estimator on the hot path of every pass.
package tokens

import (
	"unicode"
	"unicode/utf8"
)

// Estimator maps text to an approximate token count.
type Estimator interface {
	Estimate(text string) int
}

// Token is a single tokenizer unit, exposed for debugging only.
type Token struct {
	ID   int
	Text string
}

// Tokenizer is an optional capability an Estimator may also provide.
// The engine never requires it.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// EstimatorFunc adapts a plain function to the Estimator interface.
type EstimatorFunc func(text string) int

func (f EstimatorFunc) Estimate(text string) int {
	return f(text)
}

// Heuristic estimates tokens without a model-specific vocabulary.
// It blends a word count with a character count: tokens are roughly
// 0.75 per word plus one per punctuation/symbol rune, floored at
// len/4 for long unbroken runs. Good enough for budget accounting,
// within ~15% of real BPE counts on English prose.
type Heuristic struct{}

func NewHeuristic() Heuristic {
	return Heuristic{}
}

func (Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}

	wordCount := 0
	specialCount := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if inWord {
				wordCount++
				inWord = false
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			specialCount++
			if inWord {
				wordCount++
				inWord = false
			}
		default:
			inWord = true
		}
	}
	if inWord {
		wordCount++
	}

	estimate := wordCount + specialCount - wordCount/4
	if floor := utf8.RuneCountInString(text) / 4; estimate < floor {
		estimate = floor
	}
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

// Tokenize splits on word/space/punct boundaries. IDs are positional;
// this exists for debug output, not for budget math.
func (Heuristic) Tokenize(text string) []Token {
	var toks []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			toks = append(toks, Token{ID: len(toks), Text: text[start:end]})
			start = -1
		}
	}
	for i, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			flush(i)
			if !unicode.IsSpace(r) {
				toks = append(toks, Token{ID: len(toks), Text: string(r)})
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(text))
	return toks
}
