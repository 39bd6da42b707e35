package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreweave/loreweave/pkg/errors"
	"github.com/loreweave/loreweave/pkg/lore"
	"github.com/loreweave/loreweave/pkg/tokens"
	"github.com/loreweave/loreweave/pkg/vars"
)

// fixedRand always returns the same roll, making probability and group
// draws deterministic.
type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

// flatEstimator charges the same price for every entry.
func flatEstimator(cost int) tokens.Estimator {
	return tokens.EstimatorFunc(func(string) int { return cost })
}

func testEntry(t *testing.T, book string, fields map[string]interface{}) lore.Entry {
	t.Helper()
	return lore.NewEntry(lore.Raw(fields), book, lore.SourceGlobal)
}

func testBook(t *testing.T, name string, recursive bool, entries ...map[string]interface{}) lore.Book {
	t.Helper()
	b := lore.Book{Name: name, Source: lore.SourceGlobal, RecursiveScanning: recursive}
	for _, fields := range entries {
		b.Entries = append(b.Entries, testEntry(t, name, fields))
	}
	return b
}

func intPtr(v int) *int { return &v }

func TestEvaluateValidation(t *testing.T) {
	eng := New()

	t.Run("no books", func(t *testing.T) {
		_, err := eng.Evaluate(Request{})
		require.Error(t, err)
		assert.Equal(t, errors.NoBooksSupplied, errors.CodeOf(err))
	})

	t.Run("unknown generation type", func(t *testing.T) {
		_, err := eng.Evaluate(Request{
			Books:          []lore.Book{testBook(t, "b", false)},
			GenerationType: lore.GenerationType("dream"),
		})
		require.Error(t, err)
		assert.Equal(t, errors.UnknownGenerationType, errors.CodeOf(err))
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := eng.Evaluate(Request{
			Books:    []lore.Book{testBook(t, "b", false)},
			Strategy: InsertionStrategy("random"),
		})
		require.Error(t, err)
		assert.Equal(t, errors.UnknownInsertionStrategy, errors.CodeOf(err))
	})

	t.Run("unknown selective logic", func(t *testing.T) {
		book := testBook(t, "b", false, map[string]interface{}{
			"uid": "1", "keys": "a", "content": "x",
		})
		book.Entries[0].SelectiveLogic = lore.SelectiveLogic("xor")
		_, err := eng.Evaluate(Request{Books: []lore.Book{book}})
		require.Error(t, err)
		assert.Equal(t, errors.UnknownSelectiveLogic, errors.CodeOf(err))
	})
}

func TestDirectKeywordActivation(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "dragon", "content": "Dragons breathe fire."},
		map[string]interface{}{"uid": "2", "keys": "kraken", "content": "Krakens live in the deep."},
	)

	res, err := eng.Evaluate(Request{
		Books:    []lore.Book{book},
		ScanText: "A dragon circles the tower.",
	})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1)

	c := res.Selected()[0]
	assert.Equal(t, "1", c.Entry.UID)
	assert.Equal(t, ActivationDirect, c.ActivationType)
	assert.Equal(t, []string{"dragon"}, c.MatchedPrimaryKeys)
	assert.NotEmpty(t, res.EvaluationID)
}

func TestConstantAndDisabled(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "constant": true, "content": "Always present."},
		map[string]interface{}{"uid": "2", "keys": "dragon", "enabled": false, "content": "Never."},
	)

	res, err := eng.Evaluate(Request{
		Books:    []lore.Book{book},
		ScanText: "A dragon circles the tower.",
	})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, ActivationConstant, res.Selected()[0].ActivationType)
}

func TestWholeWordDefault(t *testing.T) {
	eng := New(WithDefaults(Defaults{ScanDepth: 2, MatchWholeWords: true}))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "cat", "content": "feline"},
	)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "a new category"})
	require.NoError(t, err)
	assert.Empty(t, res.Selected(), "whole-word matching must not fire inside a longer word")

	res, err = eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the cat sleeps"})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1)
}

func TestSelectiveLogic(t *testing.T) {
	eng := New()
	entry := func(logic string) map[string]interface{} {
		return map[string]interface{}{
			"uid": "1", "keys": "dragon", "selective": true,
			"secondary_keys": "fire, gold", "selective_logic": logic,
			"content": "x",
		}
	}

	cases := []struct {
		logic    string
		text     string
		selected bool
	}{
		{"and_any", "the dragon hoards gold", true},
		{"and_any", "the dragon sleeps", false},
		{"and_all", "the dragon breathes fire on gold", true},
		{"and_all", "the dragon hoards gold", false},
		{"not_any", "the dragon sleeps", true},
		{"not_any", "the dragon hoards gold", false},
		{"not_all", "the dragon hoards gold", true},
		{"not_all", "the dragon breathes fire on gold", false},
	}
	for _, tc := range cases {
		t.Run(tc.logic+"/"+tc.text, func(t *testing.T) {
			book := testBook(t, "world", false, entry(tc.logic))
			res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: tc.text})
			require.NoError(t, err)
			assert.Equal(t, tc.selected, len(res.Selected()) == 1)
		})
	}
}

func TestExcludeKeysSuppression(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "1", "keys": "dragon",
		"content": "@@exclude_keys friendly\nDragons are dangerous.",
	})

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "a friendly dragon"})
	require.NoError(t, err)
	assert.Empty(t, res.Selected())

	res, err = eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "a wild dragon"})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1)
}

func TestTokenBudget(t *testing.T) {
	eng := New(WithEstimator(flatEstimator(50)))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "low", "keys": "dragon", "insertion_order": 5, "content": "later"},
		map[string]interface{}{"uid": "high", "keys": "dragon", "insertion_order": 10, "content": "first"},
	)

	res, err := eng.Evaluate(Request{
		Books:       []lore.Book{book},
		ScanText:    "the dragon",
		TokenBudget: intPtr(60),
	})
	require.NoError(t, err)

	require.Len(t, res.Selected(), 1)
	assert.Equal(t, "high", res.Selected()[0].Entry.UID, "higher insertion order is accepted first")
	assert.Equal(t, 50, res.UsedTokens)
	assert.True(t, res.BudgetExceeded())
	require.Len(t, res.Dropped(), 1)
	assert.Equal(t, DropBudgetExhausted, res.Dropped()[0].DroppedReason)
}

func TestIgnoreBudgetBypassesOverflow(t *testing.T) {
	eng := New(WithEstimator(flatEstimator(50)))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "a", "keys": "dragon", "insertion_order": 30, "content": "x"},
		map[string]interface{}{"uid": "b", "keys": "dragon", "insertion_order": 20, "content": "x"},
		map[string]interface{}{"uid": "c", "keys": "dragon", "insertion_order": 10, "ignore_budget": true, "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:       []lore.Book{book},
		ScanText:    "the dragon",
		TokenBudget: intPtr(60),
	})
	require.NoError(t, err)

	selected := map[string]bool{}
	for _, c := range res.Selected() {
		selected[c.Entry.UID] = true
	}
	assert.True(t, selected["a"])
	assert.False(t, selected["b"], "b overflows the budget")
	assert.True(t, selected["c"], "ignore_budget entries survive overflow")
}

func TestBookBudgetSum(t *testing.T) {
	eng := New(WithEstimator(flatEstimator(50)))
	b1 := testBook(t, "one", false, map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"})
	b1.TokenBudget = intPtr(30)
	b2 := testBook(t, "two", false, map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"})
	b2.TokenBudget = intPtr(40)

	res, err := eng.Evaluate(Request{Books: []lore.Book{b1, b2}, ScanText: "the dragon"})
	require.NoError(t, err)
	require.NotNil(t, res.Budget)
	assert.Equal(t, 70, *res.Budget)
	assert.Len(t, res.Selected(), 1, "second 50-token entry exceeds the 70 sum")
}

func TestProbability(t *testing.T) {
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "1", "keys": "dragon", "probability": 40, "content": "x",
	})

	t.Run("roll under passes", func(t *testing.T) {
		eng := New()
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{book}, ScanText: "the dragon", Rand: fixedRand{0.30},
		})
		require.NoError(t, err)
		assert.Len(t, res.Selected(), 1)
	})

	t.Run("roll over fails permanently", func(t *testing.T) {
		eng := New()
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{book}, ScanText: "the dragon", Rand: fixedRand{0.90},
		})
		require.NoError(t, err)
		assert.Empty(t, res.Selected())
		require.Len(t, res.Dropped(), 1)
		assert.Equal(t, DropProbabilityFailed, res.Dropped()[0].DroppedReason)
	})

	t.Run("use_probability off always passes", func(t *testing.T) {
		b := testBook(t, "world", false, map[string]interface{}{
			"uid": "1", "keys": "dragon", "probability": 0, "use_probability": false, "content": "x",
		})
		eng := New()
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{b}, ScanText: "the dragon", Rand: fixedRand{0.99},
		})
		require.NoError(t, err)
		assert.Len(t, res.Selected(), 1)
	})
}

func TestRecursionChain(t *testing.T) {
	eng := New()
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "start", "keys": "start", "content": "the middle lies ahead"},
		map[string]interface{}{"uid": "mid", "keys": "middle", "content": "almost at the finish"},
		map[string]interface{}{"uid": "end", "keys": "finish", "content": "done"},
	)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "start here"})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 3)

	types := map[string]ActivationType{}
	for _, c := range res.Selected() {
		types[c.Entry.UID] = c.ActivationType
	}
	assert.Equal(t, ActivationDirect, types["start"])
	assert.Equal(t, ActivationRecursive, types["mid"])
	assert.Equal(t, ActivationRecursive, types["end"])
}

func TestPreventRecursion(t *testing.T) {
	eng := New()
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "a", "keys": "start", "prevent_recursion": true, "content": "the middle lies ahead"},
		map[string]interface{}{"uid": "b", "keys": "middle", "content": "never reached"},
	)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "start here"})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, "a", res.Selected()[0].Entry.UID)
}

func TestExcludeRecursion(t *testing.T) {
	eng := New()
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "a", "keys": "start", "content": "the middle lies ahead"},
		map[string]interface{}{"uid": "b", "keys": "middle", "exclude_recursion": true, "content": "x"},
	)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "start here"})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1, "exclude_recursion entries do not match recursion text")
	assert.Equal(t, "a", res.Selected()[0].Entry.UID)
}

func TestDelayUntilRecursion(t *testing.T) {
	eng := New()
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "seed", "keys": "start", "content": "alpha"},
		map[string]interface{}{"uid": "delayed", "keys": "start", "delay_until_recursion": true, "content": "beta"},
		map[string]interface{}{"uid": "deeper", "keys": "start", "delay_until_recursion": 2, "content": "gamma"},
	)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "start here"})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 3, "delay levels unlock one after another")

	// The plain entry activates on the first pass; the delayed ones only
	// once their level is reached.
	types := map[string]ActivationType{}
	for _, c := range res.Selected() {
		types[c.Entry.UID] = c.ActivationType
	}
	assert.Equal(t, ActivationDirect, types["seed"])
	assert.Equal(t, ActivationRecursive, types["delayed"])
	assert.Equal(t, ActivationRecursive, types["deeper"])
}

func TestDelayedEntryActivatesDuringLongChain(t *testing.T) {
	eng := New()
	// A self-triggering chain long enough to exhaust the step cap, plus a
	// level-1 delayed entry keyed to content that appears on the first
	// recursion pass. The delayed entry must activate alongside the chain,
	// not wait for the chain to stall.
	chain := make([]map[string]interface{}, 0, 13)
	for i := 0; i <= 11; i++ {
		chain = append(chain, map[string]interface{}{
			"uid":     fmt.Sprintf("hop%d", i),
			"keys":    fmt.Sprintf("hop%d", i),
			"content": fmt.Sprintf("hop%d", i+1),
		})
	}
	chain = append(chain, map[string]interface{}{
		"uid": "delayed", "keys": "hop1", "delay_until_recursion": true,
		"content": "delayed lore",
	})
	book := testBook(t, "world", true, chain...)

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "hop0"})
	require.NoError(t, err)

	selected := map[string]bool{}
	for _, c := range res.Selected() {
		selected[c.Entry.UID] = true
	}
	assert.True(t, selected["delayed"], "level-1 entry is eligible once recursion begins")
	assert.True(t, selected["hop10"], "chain runs to the step cap")
	assert.False(t, selected["hop11"], "step cap stops the chain")
}

func TestRecursionStepCap(t *testing.T) {
	eng := New()
	// Each entry's content triggers the next one.
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "0", "keys": "hop0", "content": "hop1"},
		map[string]interface{}{"uid": "1", "keys": "hop1", "content": "hop2"},
		map[string]interface{}{"uid": "2", "keys": "hop2", "content": "hop3"},
		map[string]interface{}{"uid": "3", "keys": "hop3", "content": "hop4"},
	)

	res, err := eng.Evaluate(Request{
		Books:             []lore.Book{book},
		ScanText:          "hop0",
		MaxRecursionSteps: 2,
	})
	require.NoError(t, err)
	// hop0 direct, hop1 on step 1, hop2 on step 2; the cap stops hop3.
	assert.Len(t, res.Selected(), 3)
}

func TestMinActivationsWidensWindow(t *testing.T) {
	eng := New(WithDefaults(Defaults{ScanDepth: 1}))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"},
	)

	messages := []string{"nothing relevant here", "the dragon waits below"}

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanMessages: messages})
	require.NoError(t, err)
	assert.Empty(t, res.Selected(), "depth 1 only sees the newest message")

	res, err = eng.Evaluate(Request{
		Books:          []lore.Book{book},
		ScanMessages:   messages,
		MinActivations: 1,
	})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1, "min_activations widens the window")
}

func TestMinActivationsWithBookScanDepth(t *testing.T) {
	// The engine default says scan everything, but the book narrows its
	// own window, so widening still has room to work with.
	eng := New(WithDefaults(Defaults{ScanDepth: 0}))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"},
	)
	book.ScanDepth = intPtr(1)

	messages := []string{"quiet", "the dragon sleeps"}

	res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanMessages: messages})
	require.NoError(t, err)
	assert.Empty(t, res.Selected(), "book depth 1 only sees the newest message")

	res, err = eng.Evaluate(Request{
		Books:          []lore.Book{book},
		ScanMessages:   messages,
		MinActivations: 1,
	})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1, "widening honors the book window")
}

func TestMinActivationsDepthMax(t *testing.T) {
	eng := New(WithDefaults(Defaults{ScanDepth: 1}))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:                  []lore.Book{book},
		ScanMessages:           []string{"one", "two", "the dragon"},
		MinActivations:         1,
		MinActivationsDepthMax: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Selected(), "depth max stops the widening short of the match")
}

func TestMinActivationsDisablesRecursion(t *testing.T) {
	eng := New(WithDefaults(Defaults{ScanDepth: 1}))
	book := testBook(t, "world", true,
		map[string]interface{}{"uid": "a", "keys": "start", "content": "the middle lies ahead"},
		map[string]interface{}{"uid": "b", "keys": "middle", "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:          []lore.Book{book},
		ScanText:       "start here",
		MinActivations: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1, "recursion is off while min_activations is set")
	assert.Equal(t, "a", res.Selected()[0].Entry.UID)
}

func TestForcedActivation(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "7", "keys": "dragon", "content": "original",
	})

	t.Run("bare uid with overrides", func(t *testing.T) {
		res, err := eng.Evaluate(Request{
			Books:    []lore.Book{book},
			ScanText: "no keys match this",
			ForcedActivations: []ForcedActivation{
				{"uid": "7", "content": "replaced", "insertion_order": 99},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Selected(), 1)
		c := res.Selected()[0]
		assert.Equal(t, ActivationForced, c.ActivationType)
		assert.Equal(t, "replaced", c.Entry.Content)
		assert.Equal(t, 99, c.Entry.InsertionOrder)
	})

	t.Run("book-relative beats bare", func(t *testing.T) {
		other := testBook(t, "other", false, map[string]interface{}{
			"uid": "7", "keys": "kraken", "content": "other original",
		})
		res, err := eng.Evaluate(Request{
			Books:    []lore.Book{book, other},
			ScanText: "silence",
			ForcedActivations: []ForcedActivation{
				{"uid": "7", "book_name": "other", "content": "targeted"},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Selected(), 1)
		assert.Equal(t, "other", res.Selected()[0].Entry.BookName)
		assert.Equal(t, "targeted", res.Selected()[0].Entry.Content)
	})

	t.Run("missing uid ignored", func(t *testing.T) {
		res, err := eng.Evaluate(Request{
			Books:             []lore.Book{book},
			ScanText:          "silence",
			ForcedActivations: []ForcedActivation{{"content": "no target"}},
		})
		require.NoError(t, err)
		assert.Empty(t, res.Selected())
	})
}

func TestInclusionGroups(t *testing.T) {
	entry := func(uid string, weight int, extra map[string]interface{}) map[string]interface{} {
		m := map[string]interface{}{
			"uid": uid, "keys": "dragon", "group": "pack", "group_weight": weight, "content": uid,
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	t.Run("weighted draw", func(t *testing.T) {
		eng := New()
		book := testBook(t, "world", false,
			entry("a", 75, nil),
			entry("b", 25, nil),
		)
		// Acceptance order is insertion-order desc then book/uid, so the
		// draw walks a (weight 75) before b. Roll 0.9*100=90 lands in b.
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{book}, ScanText: "the dragon", Rand: fixedRand{0.9},
		})
		require.NoError(t, err)
		require.Len(t, res.Selected(), 1)
		assert.Equal(t, "b", res.Selected()[0].Entry.UID)

		dropped := res.Dropped()
		require.Len(t, dropped, 1)
		assert.Equal(t, DropGroupLoser, dropped[0].DroppedReason)
	})

	t.Run("group_override wins", func(t *testing.T) {
		eng := New()
		book := testBook(t, "world", false,
			entry("a", 1, map[string]interface{}{"group_override": true}),
			entry("b", 1000, nil),
		)
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{book}, ScanText: "the dragon", Rand: fixedRand{0.99},
		})
		require.NoError(t, err)
		require.Len(t, res.Selected(), 1)
		assert.Equal(t, "a", res.Selected()[0].Entry.UID)
	})

	t.Run("scoring filters low matches", func(t *testing.T) {
		eng := New()
		book := testBook(t, "world", false,
			map[string]interface{}{
				"uid": "one", "keys": "dragon", "group": "pack",
				"use_group_scoring": true, "content": "x",
			},
			map[string]interface{}{
				"uid": "two", "keys": "dragon, tower", "group": "pack",
				"use_group_scoring": true, "content": "x",
			},
		)
		res, err := eng.Evaluate(Request{
			Books: []lore.Book{book}, ScanText: "the dragon circles the tower", Rand: fixedRand{0.0},
		})
		require.NoError(t, err)
		require.Len(t, res.Selected(), 1)
		assert.Equal(t, "two", res.Selected()[0].Entry.UID)

		dropped := res.Dropped()
		require.Len(t, dropped, 1)
		assert.Equal(t, DropGroupScoreLoser, dropped[0].DroppedReason)
	})
}

func TestStickyLifecycle(t *testing.T) {
	store := vars.NewMemoryStore()
	eng := New()
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "1", "keys": "dragon", "sticky": 2, "cooldown": 2, "content": "x",
	})

	evalAt := func(count int, text string) *Result {
		t.Helper()
		res, err := eng.Evaluate(Request{
			Books:        []lore.Book{book},
			ScanText:     text,
			MessageCount: count,
			VarStore:     store,
		})
		require.NoError(t, err)
		return res
	}

	// Message 1: keyword match starts the sticky window (through message 3).
	res := evalAt(1, "the dragon appears")
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, ActivationDirect, res.Selected()[0].ActivationType)

	// Message 2: no keyword, sticky keeps it active.
	res = evalAt(2, "nothing here")
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, ActivationSticky, res.Selected()[0].ActivationType)

	// Message 4: sticky expired, cooldown suppresses even a keyword match.
	res = evalAt(4, "the dragon roars")
	assert.Empty(t, res.Selected())

	// Message 6: cooldown over, keyword matches again.
	res = evalAt(6, "the dragon returns")
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, ActivationDirect, res.Selected()[0].ActivationType)
}

func TestFallbackStickyPersists(t *testing.T) {
	store := vars.NewMemoryStore()
	eng := New()
	book := testBook(t, "world", true,
		map[string]interface{}{
			"uid": "seed", "keys": "start", "content": "echo chamber",
		},
		map[string]interface{}{
			"uid": "cling", "keys": "echo",
			"content": "@@@sticky 2\nclingy lore",
		},
	)

	evalAt := func(count int, text string) *Result {
		t.Helper()
		res, err := eng.Evaluate(Request{
			Books:        []lore.Book{book},
			ScanText:     text,
			MessageCount: count,
			VarStore:     store,
		})
		require.NoError(t, err)
		return res
	}

	// Message 1: cling only matches recursed content, so its sticky value
	// comes from the fallback decorator.
	res := evalAt(1, "start here")
	byUID := map[string]ActivationType{}
	for _, c := range res.Selected() {
		byUID[c.Entry.UID] = c.ActivationType
	}
	assert.Equal(t, ActivationRecursive, byUID["cling"])

	// Message 2: nothing matches, but the sticky window recorded on the
	// recursive activation keeps cling in.
	res = evalAt(2, "nothing relevant")
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, "cling", res.Selected()[0].Entry.UID)
	assert.Equal(t, ActivationSticky, res.Selected()[0].ActivationType)
}

func TestDelaySuppressesEarlyMessages(t *testing.T) {
	store := vars.NewMemoryStore()
	eng := New()
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "1", "keys": "dragon", "delay": 3, "content": "x",
	})

	eval := func(count int) *Result {
		t.Helper()
		res, err := eng.Evaluate(Request{
			Books:        []lore.Book{book},
			ScanText:     "the dragon",
			MessageCount: count,
			VarStore:     store,
		})
		require.NoError(t, err)
		return res
	}

	assert.Empty(t, eval(1).Selected(), "within delay window")
	assert.Empty(t, eval(3).Selected(), "still within delay window")
	assert.Len(t, eval(4).Selected(), 1, "delay elapsed")
}

func TestActivationGates(t *testing.T) {
	eng := New()

	t.Run("activate_only_after", func(t *testing.T) {
		book := testBook(t, "world", false, map[string]interface{}{
			"uid": "1", "keys": "dragon", "content": "@@activate_only_after 5\nx",
		})
		res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the dragon", MessageCount: 3})
		require.NoError(t, err)
		assert.Empty(t, res.Selected())

		res, err = eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the dragon", MessageCount: 5})
		require.NoError(t, err)
		assert.Len(t, res.Selected(), 1)
	})

	t.Run("activate_only_every", func(t *testing.T) {
		book := testBook(t, "world", false, map[string]interface{}{
			"uid": "1", "keys": "dragon", "content": "@@activate_only_every 3\nx",
		})
		res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the dragon", MessageCount: 4})
		require.NoError(t, err)
		assert.Empty(t, res.Selected())

		res, err = eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the dragon", MessageCount: 6})
		require.NoError(t, err)
		assert.Len(t, res.Selected(), 1)
	})

	t.Run("dont_activate decorator", func(t *testing.T) {
		book := testBook(t, "world", false, map[string]interface{}{
			"uid": "1", "keys": "dragon", "content": "@@dont_activate\nx",
		})
		res, err := eng.Evaluate(Request{Books: []lore.Book{book}, ScanText: "the dragon"})
		require.NoError(t, err)
		assert.Empty(t, res.Selected())
	})
}

func TestGenerationTypeTriggers(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false, map[string]interface{}{
		"uid": "1", "keys": "dragon", "triggers": []interface{}{"normal", "swipe"}, "content": "x",
	})

	res, err := eng.Evaluate(Request{
		Books: []lore.Book{book}, ScanText: "the dragon", GenerationType: lore.GenQuiet,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Selected())

	res, err = eng.Evaluate(Request{
		Books: []lore.Book{book}, ScanText: "the dragon", GenerationType: lore.GenSwipe,
	})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1)
}

func TestEntryScanDepthOverride(t *testing.T) {
	eng := New(WithDefaults(Defaults{ScanDepth: 5}))
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "shallow", "keys": "dragon", "scan_depth": 1, "content": "x"},
		map[string]interface{}{"uid": "deep", "keys": "dragon", "content": "x"},
		map[string]interface{}{"uid": "off", "keys": "dragon", "scan_depth": 0, "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:        []lore.Book{book},
		ScanMessages: []string{"recent message", "the dragon was here"},
	})
	require.NoError(t, err)

	selected := map[string]bool{}
	for _, c := range res.Selected() {
		selected[c.Entry.UID] = true
	}
	assert.False(t, selected["shallow"], "depth 1 misses the older message")
	assert.True(t, selected["deep"])
	assert.False(t, selected["off"], "scan_depth 0 disables keyword matching")
}

func TestScannableInjections(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "1", "keys": "dragon", "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:    []lore.Book{book},
		ScanText: "nothing in the chat",
		Injections: []ScanInjection{
			{Text: "a dragon hides here", Scannable: true},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Selected(), 1)

	res, err = eng.Evaluate(Request{
		Books:    []lore.Book{book},
		ScanText: "nothing in the chat",
		Injections: []ScanInjection{
			{Text: "a dragon hides here", Scannable: false},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Selected())
}

func TestContextFieldOptIn(t *testing.T) {
	eng := New()
	book := testBook(t, "world", false,
		map[string]interface{}{"uid": "opted", "keys": "dragon", "match_scenario": true, "content": "x"},
		map[string]interface{}{"uid": "plain", "keys": "dragon", "content": "x"},
	)

	res, err := eng.Evaluate(Request{
		Books:    []lore.Book{book},
		ScanText: "nothing in the chat",
		Context:  ScanContext{Scenario: "a dragon guards the pass"},
	})
	require.NoError(t, err)
	require.Len(t, res.Selected(), 1)
	assert.Equal(t, "opted", res.Selected()[0].Entry.UID)
}

func TestBudgetMonotonicity(t *testing.T) {
	// With a fixed roll, growing the budget never deselects a previously
	// selected entry.
	makeBooks := func() []lore.Book {
		return []lore.Book{testBook(t, "world", false,
			map[string]interface{}{"uid": "a", "keys": "dragon", "insertion_order": 3, "content": "x"},
			map[string]interface{}{"uid": "b", "keys": "dragon", "insertion_order": 2, "content": "x"},
			map[string]interface{}{"uid": "c", "keys": "dragon", "insertion_order": 1, "content": "x"},
		)}
	}

	eng := New(WithEstimator(flatEstimator(10)))
	prev := map[string]bool{}
	for _, budget := range []int{10, 20, 30} {
		res, err := eng.Evaluate(Request{
			Books:       makeBooks(),
			ScanText:    "the dragon",
			TokenBudget: intPtr(budget),
			Rand:        fixedRand{0.5},
		})
		require.NoError(t, err)

		current := map[string]bool{}
		for _, c := range res.Selected() {
			current[c.Entry.UID] = true
		}
		for uid := range prev {
			assert.True(t, current[uid], "budget %d lost previously selected %s", budget, uid)
		}
		prev = current
	}
}
