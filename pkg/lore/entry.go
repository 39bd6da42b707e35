package lore

import (
	"fmt"
	"strings"
)

// Entry is one lore snippet: keys to match, content to inject and the
// activation behavior tying the two together. Entries are immutable after
// construction; the engine synthesizes new instances when it needs a
// modified variant (forced activations, fallback decorators).
type Entry struct {
	// Identity
	UID      string
	BookName string
	Source   Source

	// Matching
	Keys            []string
	SecondaryKeys   []string
	Selective       bool
	SelectiveLogic  SelectiveLogic
	UseRegex        bool
	CaseSensitive   *bool // nil inherits the engine default
	MatchWholeWords *bool // nil inherits the engine default

	// Content and placement
	Content        string
	Comment        string
	Position       Position
	Depth          int
	Role           Role
	Outlet         string
	InsertionOrder int

	// Activation behavior
	Enabled            bool
	Constant           bool
	ScanDepth          *int // nil inherits the book/engine default
	Triggers           []string
	ActivateOnlyAfter  int
	ActivateOnlyEvery  int
	DontActivate       bool
	ExcludeKeys        []string
	IgnoreBudget       bool
	IgnoreOnMaxContext bool
	Probability        int // clamped to [0,100]
	UseProbability     bool

	// Recursion and timed effects
	Sticky              int
	Cooldown            int
	Delay               int
	ExcludeRecursion    bool
	PreventRecursion    bool
	DelayUntilRecursion int // 0 disabled, >=1 recursion level

	// Grouping
	Group           string
	GroupOverride   bool
	GroupWeight     int
	UseGroupScoring *bool // nil inherits the engine default

	// Context-scan flags
	MatchPersonaDescription   bool
	MatchCharacterDescription bool
	MatchCharacterPersonality bool
	MatchCharacterDepthPrompt bool
	MatchScenario             bool
	MatchCreatorNotes         bool

	// Inline decorators parsed out of the original content. Content above
	// holds the body with the decorator block already stripped.
	Decorators         Decorators
	FallbackDecorators Decorators

	// Raw retains the original source map for legacy fallback lookups.
	Raw Raw
}

// NewEntry normalizes one heterogeneous source map (CCv2, CCv3 or
// SillyTavern dialect) into an Entry belonging to the named book.
func NewEntry(raw Raw, bookName string, source Source) Entry {
	e := Entry{
		UID:      raw.String("", "uid", "id"),
		BookName: bookName,
		Source:   source,

		Keys:            raw.Keys("keys", "key"),
		SecondaryKeys:   raw.Keys("secondary_keys", "keysecondary", "secondaryKeys"),
		Selective:       raw.Bool(false, "selective"),
		UseRegex:        raw.Bool(false, "use_regex", "useRegex"),
		CaseSensitive:   raw.OptBool("case_sensitive", "caseSensitive"),
		MatchWholeWords: raw.OptBool("match_whole_words", "matchWholeWords"),

		Content:        raw.String("", "content"),
		Comment:        raw.String("", "comment", "title"),
		Depth:          raw.Int(4, "depth"),
		Outlet:         raw.String("", "outlet"),
		InsertionOrder: raw.Int(0, "insertion_order", "insertionOrder", "order"),

		Constant:          raw.Bool(false, "constant"),
		ScanDepth:         raw.OptInt("scan_depth", "scanDepth"),
		Triggers:          raw.StringList("triggers"),
		ActivateOnlyAfter: raw.Int(0, "activate_only_after", "activateOnlyAfter"),
		ActivateOnlyEvery: raw.Int(0, "activate_only_every", "activateOnlyEvery"),
		DontActivate:      raw.Bool(false, "dont_activate", "dontActivate"),
		ExcludeKeys:       raw.Keys("exclude_keys", "excludeKeys"),
		IgnoreBudget:      raw.Bool(false, "ignore_budget", "ignoreBudget"),
		Probability:       raw.Int(100, "probability"),
		UseProbability:    raw.Bool(true, "use_probability", "useProbability"),

		Sticky:           raw.Int(0, "sticky"),
		Cooldown:         raw.Int(0, "cooldown"),
		Delay:            raw.Int(0, "delay"),
		ExcludeRecursion: raw.Bool(false, "exclude_recursion", "excludeRecursion"),
		PreventRecursion: raw.Bool(false, "prevent_recursion", "preventRecursion"),

		Group:           strings.TrimSpace(raw.String("", "group")),
		GroupOverride:   raw.Bool(false, "group_override", "groupOverride"),
		GroupWeight:     raw.Int(100, "group_weight", "groupWeight"),
		UseGroupScoring: raw.OptBool("use_group_scoring", "useGroupScoring"),

		MatchPersonaDescription:   raw.Bool(false, "match_persona_description", "matchPersonaDescription"),
		MatchCharacterDescription: raw.Bool(false, "match_character_description", "matchCharacterDescription"),
		MatchCharacterPersonality: raw.Bool(false, "match_character_personality", "matchCharacterPersonality"),
		MatchCharacterDepthPrompt: raw.Bool(false, "match_character_depth_prompt", "matchCharacterDepthPrompt"),
		MatchScenario:             raw.Bool(false, "match_scenario", "matchScenario"),
		MatchCreatorNotes:         raw.Bool(false, "match_creator_notes", "matchCreatorNotes"),

		Raw: raw,
	}

	// "enabled" wins when present; SillyTavern exports carry the inverse.
	if v, ok := raw.Lookup("enabled"); ok && v != nil {
		e.Enabled = raw.Bool(true, "enabled")
	} else {
		e.Enabled = !raw.Bool(false, "disable", "disabled")
	}

	if logic, ok := NormalizeSelectiveLogic(raw.String("", "selective_logic", "selectiveLogic")); ok {
		e.SelectiveLogic = logic
	} else {
		e.SelectiveLogic = LogicAndAny
	}

	e.Position = NormalizePosition(raw.String(string(PosAfterCharDefs), "position"))
	if role, ok := NormalizeRole(raw.String("", "role")); ok {
		e.Role = role
	} else {
		e.Role = RoleSystem
	}

	e.DelayUntilRecursion = normalizeDelayUntilRecursion(raw)

	if e.Probability < 0 {
		e.Probability = 0
	} else if e.Probability > 100 {
		e.Probability = 100
	}
	if e.GroupWeight < 1 {
		e.GroupWeight = 1
	}
	if e.Sticky < 0 {
		e.Sticky = 0
	}
	if e.Cooldown < 0 {
		e.Cooldown = 0
	}
	if e.Delay < 0 {
		e.Delay = 0
	}

	parsed := ParseDecorators(e.Content)
	e.Content = parsed.Content
	e.Decorators = parsed.Decorators
	e.FallbackDecorators = parsed.FallbackDecorators

	return e
}

// delay_until_recursion tolerates nil (disabled), booleans (true = level 1)
// and explicit levels >= 1.
func normalizeDelayUntilRecursion(raw Raw) int {
	v, ok := raw.Lookup("delay_until_recursion", "delayUntilRecursion")
	if !ok || v == nil {
		return 0
	}
	if b, isBool := v.(bool); isBool {
		if b {
			return 1
		}
		return 0
	}
	if n, ok := coerceInt(v); ok && n >= 1 {
		return n
	}
	return 0
}

// Key returns the composite identity used to dedupe candidates within one
// evaluation.
func (e Entry) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.Source, e.BookName, e.UID)
}

// BookKey is the book-relative identity, used by loose forced-activation
// targeting.
func (e Entry) BookKey() string {
	return fmt.Sprintf("%s:%s", e.BookName, e.UID)
}

// Groups splits the comma-separated group field into individual group names.
func (e Entry) Groups() []string {
	if e.Group == "" {
		return nil
	}
	var groups []string
	for _, g := range strings.Split(e.Group, ",") {
		if t := strings.TrimSpace(g); t != "" {
			groups = append(groups, t)
		}
	}
	return groups
}

// TriggersOn reports whether the entry participates in the given generation
// type. An empty trigger list participates in everything.
func (e Entry) TriggersOn(gen GenerationType) bool {
	if len(e.Triggers) == 0 {
		return true
	}
	for _, t := range e.Triggers {
		if strings.EqualFold(t, string(gen)) {
			return true
		}
	}
	return false
}

// CaseSensitiveOr resolves the effective case sensitivity: explicit field,
// then the legacy raw-hash spellings, then the engine default.
func (e Entry) CaseSensitiveOr(def bool) bool {
	if e.CaseSensitive != nil {
		return *e.CaseSensitive
	}
	if b := e.Raw.OptBool("caseSensitive", "case_sensitive"); b != nil {
		return *b
	}
	return def
}

// MatchWholeWordsOr resolves the effective whole-word setting with the same
// precedence as CaseSensitiveOr.
func (e Entry) MatchWholeWordsOr(def bool) bool {
	if e.MatchWholeWords != nil {
		return *e.MatchWholeWords
	}
	if b := e.Raw.OptBool("matchWholeWords", "match_whole_words"); b != nil {
		return *b
	}
	return def
}

// UseGroupScoringOr resolves the tri-state group-scoring flag.
func (e Entry) UseGroupScoringOr(def bool) bool {
	if e.UseGroupScoring != nil {
		return *e.UseGroupScoring
	}
	return def
}

// WithAppliedDecorators returns a copy with the standard (or, for recursive
// activation, fallback) decorator set applied on top of the entry's fields.
func (e Entry) WithAppliedDecorators(isFallback bool) Entry {
	parsed := ParsedContent{
		Decorators:         e.Decorators,
		FallbackDecorators: e.FallbackDecorators,
	}
	return parsed.Apply(e, isFallback)
}
