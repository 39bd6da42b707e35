package engine

import (
	"encoding/json"

	"github.com/loreweave/loreweave/pkg/logging"
	"github.com/loreweave/loreweave/pkg/lore"
	"github.com/loreweave/loreweave/pkg/vars"
)

// DefaultTimedEffectsKey is the variable-store key timed-effect state lives
// under when the caller does not pick one.
const DefaultTimedEffectsKey = "lore_timed_effects"

// timedState is the JSON shape persisted in the variable store. All maps are
// keyed by the entry's book-relative key (book:uid) so state survives a book
// being attached from a different source.
type timedState struct {
	// Sticky maps entry key to the last message count at which the entry
	// is still force-activated.
	Sticky map[string]int `json:"sticky"`
	// Cooldown maps entry key to the last message count at which the
	// entry is still suppressed.
	Cooldown map[string]int `json:"cooldown"`
	// Delay maps entry key to the message-count baseline recorded when
	// the entry was first seen with a delay configured.
	Delay map[string]int `json:"delay"`
}

func newTimedState() timedState {
	return timedState{
		Sticky:   make(map[string]int),
		Cooldown: make(map[string]int),
		Delay:    make(map[string]int),
	}
}

// TimedEffects tracks sticky, cooldown and delay counters for a set of
// entries against a message-count clock. State is advisory: a missing or
// corrupt store never fails an evaluation, it just means no effects are
// active.
type TimedEffects struct {
	store    vars.Store
	stateKey string
	count    int
	entries  map[string]lore.Entry
	state    timedState
	log      *logging.Logger
}

// NewTimedEffects loads timed-effect state for the given entries at the
// current message count. A nil store disables all effects.
func NewTimedEffects(store vars.Store, stateKey string, messageCount int, entries []lore.Entry) *TimedEffects {
	if stateKey == "" {
		stateKey = DefaultTimedEffectsKey
	}
	t := &TimedEffects{
		store:    store,
		stateKey: stateKey,
		count:    messageCount,
		entries:  make(map[string]lore.Entry, len(entries)),
		state:    newTimedState(),
		log:      logging.GetLogger(),
	}
	for _, e := range entries {
		t.entries[e.BookKey()] = timedVariant(e)
	}
	t.load()
	return t
}

// timedVariant is the entry as the timed-effect bookkeeping sees it: its
// standard timed values raised to anything the fallback decorators would
// set. State recorded after a recursive activation (where fallback
// decorators apply) must survive later evaluations in which the entry
// matches nothing and is only ever seen in its standard form.
func timedVariant(e lore.Entry) lore.Entry {
	fb := e.WithAppliedDecorators(true)
	if fb.Sticky > e.Sticky {
		e.Sticky = fb.Sticky
	}
	if fb.Cooldown > e.Cooldown {
		e.Cooldown = fb.Cooldown
	}
	if fb.Delay > e.Delay {
		e.Delay = fb.Delay
	}
	return e
}

// registered maps an entry onto its registered timed variant, falling back
// to the entry itself for unknown keys.
func (t *TimedEffects) registered(e lore.Entry) lore.Entry {
	if reg, ok := t.entries[e.BookKey()]; ok {
		return reg
	}
	return e
}

func (t *TimedEffects) load() {
	if t.store == nil {
		return
	}
	raw, ok := t.store.Get(t.stateKey)
	if !ok || len(raw) == 0 {
		return
	}
	var loaded timedState
	if err := json.Unmarshal(raw, &loaded); err != nil {
		t.log.Warn("discarding corrupt timed-effect state under %q: %v", t.stateKey, err)
		return
	}
	if loaded.Sticky != nil {
		t.state.Sticky = loaded.Sticky
	}
	if loaded.Cooldown != nil {
		t.state.Cooldown = loaded.Cooldown
	}
	if loaded.Delay != nil {
		t.state.Delay = loaded.Delay
	}
}

// Check reconciles the persisted counters against the current message count:
// expired stickies roll over into cooldowns, expired cooldowns are dropped,
// and delay baselines are recorded for entries seen for the first time.
// Called once per evaluation before the scan loop.
func (t *TimedEffects) Check() {
	if t.store == nil {
		return
	}

	for key, end := range t.state.Sticky {
		entry, known := t.entries[key]
		if !known || entry.Sticky <= 0 {
			delete(t.state.Sticky, key)
			continue
		}
		if t.count > end {
			delete(t.state.Sticky, key)
			if entry.Cooldown > 0 {
				t.state.Cooldown[key] = end + entry.Cooldown
			}
		}
	}

	for key, end := range t.state.Cooldown {
		if _, known := t.entries[key]; !known || t.count > end {
			delete(t.state.Cooldown, key)
		}
	}

	for key := range t.state.Delay {
		entry, known := t.entries[key]
		if !known || entry.Delay <= 0 {
			delete(t.state.Delay, key)
		}
	}
	for key, entry := range t.entries {
		if entry.Delay > 0 {
			if _, recorded := t.state.Delay[key]; !recorded {
				t.state.Delay[key] = t.count
			}
		}
	}
}

// StickyActive reports whether the entry is currently force-activated.
func (t *TimedEffects) StickyActive(e lore.Entry) bool {
	if t.store == nil {
		return false
	}
	e = t.registered(e)
	if e.Sticky <= 0 {
		return false
	}
	end, ok := t.state.Sticky[e.BookKey()]
	return ok && t.count <= end
}

// CooldownActive reports whether the entry is inside its cooldown window.
func (t *TimedEffects) CooldownActive(e lore.Entry) bool {
	if t.store == nil {
		return false
	}
	end, ok := t.state.Cooldown[e.BookKey()]
	return ok && t.count <= end
}

// DelayActive reports whether the entry is still waiting out its configured
// delay. While waiting the entry is fully suppressed.
func (t *TimedEffects) DelayActive(e lore.Entry) bool {
	if t.store == nil {
		return false
	}
	e = t.registered(e)
	if e.Delay <= 0 {
		return false
	}
	baseline, ok := t.state.Delay[e.BookKey()]
	if !ok {
		baseline = t.count
	}
	return t.count-baseline < e.Delay
}

// SetEffects initializes or refreshes counters for the entries that were
// actually selected into the prompt, then commits state to the store.
// Called once after the scan loop.
func (t *TimedEffects) SetEffects(selected []lore.Entry) {
	if t.store == nil {
		return
	}

	for _, e := range selected {
		key := e.BookKey()
		if e.Sticky > 0 {
			if _, active := t.state.Sticky[key]; !active {
				t.state.Sticky[key] = t.count + e.Sticky
			}
			continue
		}
		if e.Cooldown > 0 {
			t.state.Cooldown[key] = t.count + e.Cooldown
		}
	}

	data, err := json.Marshal(t.state)
	if err != nil {
		t.log.Warn("failed to encode timed-effect state: %v", err)
		return
	}
	if err := t.store.Set(t.stateKey, data); err != nil {
		t.log.Warn("failed to persist timed-effect state under %q: %v", t.stateKey, err)
	}
}
