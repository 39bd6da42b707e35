package engine

import (
	"sort"
)

// Rand is the randomness capability the engine threads through probability
// rolls and weighted group draws. math/rand's *Rand satisfies it.
type Rand interface {
	Float64() float64
}

// resolveGroups applies inclusion-group resolution to one pass's activated
// candidates: per group at most one member survives, with sticky members,
// already-satisfied groups, match-score filtering and explicit overrides
// resolved before the weighted random draw. Losers get their DroppedReason
// set and are removed from the returned slice.
func (ev *evaluation) resolveGroups(activated []*Candidate) []*Candidate {
	dropped := make(map[*Candidate]bool)

	byGroup := make(map[string][]*Candidate)
	var names []string
	for _, c := range activated {
		for _, g := range c.Entry.Groups() {
			if len(byGroup[g]) == 0 {
				names = append(names, g)
			}
			byGroup[g] = append(byGroup[g], c)
		}
	}
	sort.Strings(names)

	drop := func(c *Candidate, reason DroppedReason) {
		c.Selected = false
		c.DroppedReason = reason
		dropped[c] = true
	}

	for _, name := range names {
		var members []*Candidate
		for _, c := range byGroup[name] {
			if !dropped[c] {
				members = append(members, c)
			}
		}
		if len(members) == 0 {
			continue
		}

		// Sticky members always win their group.
		var sticky, rest []*Candidate
		for _, c := range members {
			if c.ActivationType == ActivationSticky || ev.timed.StickyActive(c.Entry) {
				sticky = append(sticky, c)
			} else {
				rest = append(rest, c)
			}
		}
		if len(sticky) > 0 {
			for _, c := range rest {
				drop(c, DropGroupStickyLoser)
			}
			continue
		}

		if ev.selectedGroups[name] {
			for _, c := range members {
				drop(c, DropGroupAlreadyActivated)
			}
			continue
		}

		survivors := members
		if ev.groupWantsScoring(members) {
			survivors = ev.filterByScore(name, members, drop)
		}
		if len(survivors) <= 1 {
			continue
		}

		winner := ev.pickGroupWinner(survivors)
		for _, c := range survivors {
			if c != winner {
				drop(c, DropGroupLoser)
			}
		}
	}

	var out []*Candidate
	for _, c := range activated {
		if !dropped[c] {
			out = append(out, c)
		}
	}
	return out
}

func (ev *evaluation) groupWantsScoring(members []*Candidate) bool {
	for _, c := range members {
		if c.Entry.UseGroupScoringOr(ev.eng.defaults.UseGroupScoring) {
			return true
		}
	}
	return false
}

// filterByScore keeps only candidates at the group's max match score.
func (ev *evaluation) filterByScore(name string, members []*Candidate, drop func(*Candidate, DroppedReason)) []*Candidate {
	maxScore := 0
	for _, c := range members {
		if s := c.matchScore(); s > maxScore {
			maxScore = s
		}
	}
	var survivors []*Candidate
	for _, c := range members {
		if c.matchScore() < maxScore {
			drop(c, DropGroupScoreLoser)
		} else {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

// pickGroupWinner prefers an explicit group_override (highest insertion
// order among overrides), falling back to a weighted random draw over
// group_weight.
func (ev *evaluation) pickGroupWinner(survivors []*Candidate) *Candidate {
	var override *Candidate
	for _, c := range survivors {
		if !c.Entry.GroupOverride {
			continue
		}
		if override == nil || c.Entry.InsertionOrder > override.Entry.InsertionOrder {
			override = c
		}
	}
	if override != nil {
		return override
	}

	total := 0
	for _, c := range survivors {
		total += c.Entry.GroupWeight
	}
	if total <= 0 {
		return survivors[0]
	}
	roll := ev.rng.Float64() * float64(total)
	acc := 0.0
	for _, c := range survivors {
		acc += float64(c.Entry.GroupWeight)
		if roll < acc {
			return c
		}
	}
	return survivors[len(survivors)-1]
}
