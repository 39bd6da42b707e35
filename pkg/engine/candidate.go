package engine

import "github.com/loreweave/loreweave/pkg/lore"

// ActivationType records how an entry got activated.
type ActivationType string

const (
	ActivationConstant  ActivationType = "constant"
	ActivationSticky    ActivationType = "sticky"
	ActivationForced    ActivationType = "forced"
	ActivationDirect    ActivationType = "direct"
	ActivationRecursive ActivationType = "recursive"
)

// DroppedReason documents why an activated entry was not selected.
type DroppedReason string

const (
	DropBudgetExhausted       DroppedReason = "budget_exhausted"
	DropProbabilityFailed     DroppedReason = "probability_failed"
	DropGroupLoser            DroppedReason = "group_loser"
	DropGroupStickyLoser      DroppedReason = "group_sticky_loser"
	DropGroupAlreadyActivated DroppedReason = "group_already_activated"
	DropGroupScoreLoser       DroppedReason = "group_score_loser"
)

// Candidate binds one entry to its activation outcome within a single
// evaluation. Exactly one candidate exists per (source, book, uid); later
// passes may update it but never duplicate it.
type Candidate struct {
	Entry lore.Entry

	MatchedPrimaryKeys   []string
	MatchedSecondaryKeys []string

	ActivationType ActivationType
	TokenEstimate  int
	Selected       bool
	DroppedReason  DroppedReason
}

// Key returns the candidate's composite identity.
func (c *Candidate) Key() string {
	return c.Entry.Key()
}

// matchScore is the inclusion-group score: matched primary keys plus, for
// selective entries, matched secondary keys. With and_all logic the
// secondary contribution only counts when every secondary key matched.
func (c *Candidate) matchScore() int {
	score := len(c.MatchedPrimaryKeys)
	if !c.Entry.Selective {
		return score
	}
	if c.Entry.SelectiveLogic == lore.LogicAndAll &&
		len(c.MatchedSecondaryKeys) != len(c.Entry.SecondaryKeys) {
		return score
	}
	return score + len(c.MatchedSecondaryKeys)
}
