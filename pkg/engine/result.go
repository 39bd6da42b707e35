package engine

import (
	"sort"
	"strings"

	"github.com/loreweave/loreweave/pkg/errors"
	"github.com/loreweave/loreweave/pkg/lore"
)

// InsertionStrategy orders selected entries within each position group.
type InsertionStrategy string

const (
	StrategySortedEvenly       InsertionStrategy = "sorted_evenly"
	StrategyCharacterLoreFirst InsertionStrategy = "character_lore_first"
	StrategyGlobalLoreFirst    InsertionStrategy = "global_lore_first"
)

// ValidateStrategy fails fast on unknown strategies.
func ValidateStrategy(s InsertionStrategy) error {
	switch s {
	case StrategySortedEvenly, StrategyCharacterLoreFirst, StrategyGlobalLoreFirst:
		return nil
	}
	return errors.WithFields(
		errors.New(errors.UnknownInsertionStrategy, "unknown insertion strategy"),
		errors.Fields{"strategy": string(s)})
}

// Result is the immutable snapshot of one evaluate call.
type Result struct {
	// EvaluationID correlates log records of this call.
	EvaluationID string
	// Books lists the evaluated book names.
	Books []string
	// ScanText is the direct scan text of the first pass.
	ScanText string
	// Budget is the effective token budget; nil means unlimited.
	Budget *int
	// UsedTokens is the sum of selected entries' token estimates.
	UsedTokens int
	// Strategy is the insertion strategy this evaluation was asked for.
	Strategy InsertionStrategy
	// Candidates holds every activation attempt, selected and dropped, in
	// the deterministic order candidates were first recorded.
	Candidates []*Candidate
}

// Selected returns the candidates chosen into the prompt.
func (r *Result) Selected() []*Candidate {
	var out []*Candidate
	for _, c := range r.Candidates {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}

// Dropped returns the candidates that activated but were not selected.
func (r *Result) Dropped() []*Candidate {
	var out []*Candidate
	for _, c := range r.Candidates {
		if !c.Selected {
			out = append(out, c)
		}
	}
	return out
}

// BudgetExceeded reports whether any entry was dropped for budget reasons.
func (r *Result) BudgetExceeded() bool {
	return r.BudgetDroppedCount() > 0
}

// BudgetDroppedCount counts entries dropped with reason budget_exhausted.
func (r *Result) BudgetDroppedCount() int {
	n := 0
	for _, c := range r.Candidates {
		if !c.Selected && c.DroppedReason == DropBudgetExhausted {
			n++
		}
	}
	return n
}

// SelectedByPosition groups selected entries by position and orders each
// group by the given strategy. All strategies share a fixed source rank:
// chat-sourced entries come before persona-sourced entries come before
// everything else.
func (r *Result) SelectedByPosition(strategy InsertionStrategy) (map[lore.Position][]*Candidate, error) {
	if err := ValidateStrategy(strategy); err != nil {
		return nil, err
	}
	grouped := make(map[lore.Position][]*Candidate)
	for _, c := range r.Selected() {
		grouped[c.Entry.Position] = append(grouped[c.Entry.Position], c)
	}
	for pos := range grouped {
		sortCandidates(grouped[pos], strategy)
	}
	return grouped, nil
}

// Outlets concatenates the content of selected outlet entries per outlet
// name, ordered by the result's configured strategy. Consumers splice each
// value into their named insertion point.
func (r *Result) Outlets() map[string]string {
	byName := make(map[string][]*Candidate)
	for _, c := range r.Selected() {
		if c.Entry.Position != lore.PosOutlet || strings.TrimSpace(c.Entry.Outlet) == "" {
			continue
		}
		byName[c.Entry.Outlet] = append(byName[c.Entry.Outlet], c)
	}

	out := make(map[string]string, len(byName))
	for name, group := range byName {
		sortCandidates(group, r.Strategy)
		parts := make([]string, 0, len(group))
		for _, c := range group {
			parts = append(parts, c.Entry.Content)
		}
		out[name] = strings.Join(parts, "\n")
	}
	return out
}

// sourceRank is the strategy-independent first ordering key.
func sourceRank(s lore.Source) int {
	switch s {
	case lore.SourceChat:
		return 0
	case lore.SourcePersona:
		return 1
	default:
		return 2
	}
}

// strategyRank breaks candidates into a preferred class per strategy.
func strategyRank(c *Candidate, strategy InsertionStrategy) int {
	switch strategy {
	case StrategyCharacterLoreFirst:
		if c.Entry.Source == lore.SourceCharacter {
			return 0
		}
		return 1
	case StrategyGlobalLoreFirst:
		if c.Entry.Source == lore.SourceGlobal {
			return 0
		}
		return 1
	default:
		return 0
	}
}

func sortCandidates(cands []*Candidate, strategy InsertionStrategy) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if ra, rb := sourceRank(a.Entry.Source), sourceRank(b.Entry.Source); ra != rb {
			return ra < rb
		}
		if ra, rb := strategyRank(a, strategy), strategyRank(b, strategy); ra != rb {
			return ra < rb
		}
		if a.Entry.InsertionOrder != b.Entry.InsertionOrder {
			return a.Entry.InsertionOrder < b.Entry.InsertionOrder
		}
		if a.Entry.BookName != b.Entry.BookName {
			return a.Entry.BookName < b.Entry.BookName
		}
		return a.Entry.UID < b.Entry.UID
	})
}
