package engine

import (
	"github.com/loreweave/loreweave/pkg/lore"
)

// ForcedActivation is an externally supplied override record. It must carry
// a uid (or id); book_name/world/book and source narrow the target, and any
// subset of entry fields may be overridden without discarding the rest of
// the original entry.
type ForcedActivation lore.Raw

// forcedIndex resolves entries against forced-activation records. Records
// index under a fully-qualified key when they name a source, a book-relative
// key when they name a book, and a bare uid otherwise. Lookup checks the
// most specific key first.
type forcedIndex struct {
	full     map[string]lore.Raw // source:book:uid
	relative map[string]lore.Raw // book:uid
	bare     map[string]lore.Raw // uid
}

func indexForced(list []ForcedActivation) *forcedIndex {
	idx := &forcedIndex{
		full:     make(map[string]lore.Raw),
		relative: make(map[string]lore.Raw),
		bare:     make(map[string]lore.Raw),
	}
	for _, rec := range list {
		raw := lore.Raw(rec)
		uid := raw.String("", "uid", "id")
		if uid == "" {
			continue
		}
		book := raw.String("", "book_name", "bookName", "world", "book")
		source := raw.String("", "source")
		switch {
		case book != "" && source != "":
			idx.full[source+":"+book+":"+uid] = raw
		case book != "":
			idx.relative[book+":"+uid] = raw
		default:
			idx.bare[uid] = raw
		}
	}
	return idx
}

// lookup returns the override record targeting the entry, full key first.
func (f *forcedIndex) lookup(e lore.Entry) (lore.Raw, bool) {
	if rec, ok := f.full[e.Key()]; ok {
		return rec, true
	}
	if rec, ok := f.relative[e.BookKey()]; ok {
		return rec, true
	}
	rec, ok := f.bare[e.UID]
	return rec, ok
}

// applyForcedOverrides synthesizes the forced Entry variant: a copy of the
// original with any present override fields replaced. The original is never
// mutated.
func applyForcedOverrides(e lore.Entry, rec lore.Raw) lore.Entry {
	if v, ok := rec.Lookup("content"); ok && v != nil {
		e.Content = rec.String(e.Content, "content")
	}
	if v, ok := rec.Lookup("comment"); ok && v != nil {
		e.Comment = rec.String(e.Comment, "comment")
	}
	if v, ok := rec.Lookup("position"); ok && v != nil {
		e.Position = lore.NormalizePosition(rec.String("", "position"))
	}
	if v, ok := rec.Lookup("depth"); ok && v != nil {
		e.Depth = rec.Int(e.Depth, "depth")
	}
	if v, ok := rec.Lookup("role"); ok && v != nil {
		if role, valid := lore.NormalizeRole(rec.String("", "role")); valid {
			e.Role = role
		}
	}
	if v, ok := rec.Lookup("outlet"); ok && v != nil {
		e.Outlet = rec.String(e.Outlet, "outlet")
	}
	if v, ok := rec.Lookup("insertion_order", "insertionOrder", "order"); ok && v != nil {
		e.InsertionOrder = rec.Int(e.InsertionOrder, "insertion_order", "insertionOrder", "order")
	}
	if v, ok := rec.Lookup("ignore_budget", "ignoreBudget"); ok && v != nil {
		e.IgnoreBudget = rec.Bool(e.IgnoreBudget, "ignore_budget", "ignoreBudget")
	}
	if v, ok := rec.Lookup("group"); ok && v != nil {
		e.Group = rec.String(e.Group, "group")
	}
	if v, ok := rec.Lookup("group_override", "groupOverride"); ok && v != nil {
		e.GroupOverride = rec.Bool(e.GroupOverride, "group_override", "groupOverride")
	}
	if v, ok := rec.Lookup("group_weight", "groupWeight"); ok && v != nil {
		if w := rec.Int(e.GroupWeight, "group_weight", "groupWeight"); w >= 1 {
			e.GroupWeight = w
		}
	}
	if b := rec.OptBool("use_group_scoring", "useGroupScoring"); b != nil {
		e.UseGroupScoring = b
	}
	if v, ok := rec.Lookup("probability"); ok && v != nil {
		p := rec.Int(e.Probability, "probability")
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		e.Probability = p
	}
	if v, ok := rec.Lookup("use_probability", "useProbability"); ok && v != nil {
		e.UseProbability = rec.Bool(e.UseProbability, "use_probability", "useProbability")
	}
	if v, ok := rec.Lookup("sticky"); ok && v != nil {
		if n := rec.Int(e.Sticky, "sticky"); n >= 0 {
			e.Sticky = n
		}
	}
	if v, ok := rec.Lookup("cooldown"); ok && v != nil {
		if n := rec.Int(e.Cooldown, "cooldown"); n >= 0 {
			e.Cooldown = n
		}
	}
	if v, ok := rec.Lookup("delay"); ok && v != nil {
		if n := rec.Int(e.Delay, "delay"); n >= 0 {
			e.Delay = n
		}
	}
	if v, ok := rec.Lookup("exclude_recursion", "excludeRecursion"); ok && v != nil {
		e.ExcludeRecursion = rec.Bool(e.ExcludeRecursion, "exclude_recursion", "excludeRecursion")
	}
	if v, ok := rec.Lookup("prevent_recursion", "preventRecursion"); ok && v != nil {
		e.PreventRecursion = rec.Bool(e.PreventRecursion, "prevent_recursion", "preventRecursion")
	}
	if v, ok := rec.Lookup("delay_until_recursion", "delayUntilRecursion"); ok && v != nil {
		switch val := v.(type) {
		case bool:
			if val {
				e.DelayUntilRecursion = 1
			} else {
				e.DelayUntilRecursion = 0
			}
		default:
			if n := rec.Int(0, "delay_until_recursion", "delayUntilRecursion"); n >= 1 {
				e.DelayUntilRecursion = n
			} else {
				e.DelayUntilRecursion = 0
			}
		}
	}
	return e
}
