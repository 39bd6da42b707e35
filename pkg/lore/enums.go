// Package lore defines the data model for world-info books and entries:
// normalization of heterogeneous source dialects (CCv2, CCv3, SillyTavern
// exports), the key-list parser, and the inline decorator parser.
package lore

import "strings"

// Position names the prompt slot an entry's content is injected into.
type Position string

const (
	PosBeforeCharDefs        Position = "before_char_defs"
	PosAfterCharDefs         Position = "after_char_defs"
	PosBeforeExampleMessages Position = "before_example_messages"
	PosAfterExampleMessages  Position = "after_example_messages"
	PosTopOfAN               Position = "top_of_an"
	PosBottomOfAN            Position = "bottom_of_an"
	PosAtDepth               Position = "at_depth"
	PosOutlet                Position = "outlet"
)

// positionAliases maps the many spellings found in the wild (decorator
// values, SillyTavern numeric codes, shorthand names) onto canonical
// positions.
var positionAliases = map[string]Position{
	"before_char_defs":        PosBeforeCharDefs,
	"before_char":             PosBeforeCharDefs,
	"before":                  PosBeforeCharDefs,
	"0":                       PosBeforeCharDefs,
	"after_char_defs":         PosAfterCharDefs,
	"after_char":              PosAfterCharDefs,
	"after":                   PosAfterCharDefs,
	"1":                       PosAfterCharDefs,
	"top_of_an":               PosTopOfAN,
	"an_top":                  PosTopOfAN,
	"2":                       PosTopOfAN,
	"bottom_of_an":            PosBottomOfAN,
	"an_bottom":               PosBottomOfAN,
	"3":                       PosBottomOfAN,
	"at_depth":                PosAtDepth,
	"depth":                   PosAtDepth,
	"4":                       PosAtDepth,
	"before_example_messages": PosBeforeExampleMessages,
	"before_example":          PosBeforeExampleMessages,
	"before_em":               PosBeforeExampleMessages,
	"5":                       PosBeforeExampleMessages,
	"after_example_messages":  PosAfterExampleMessages,
	"after_example":           PosAfterExampleMessages,
	"after_em":                PosAfterExampleMessages,
	"6":                       PosAfterExampleMessages,
	"outlet":                  PosOutlet,
}

// NormalizePosition resolves any known alias to its canonical position.
// Unrecognized input defaults to after_char_defs.
func NormalizePosition(v string) Position {
	if p, ok := positionAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
		return p
	}
	return PosAfterCharDefs
}

// Role is the chat role attached to at-depth injections.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole accepts role names and SillyTavern numeric codes.
// Returns false for anything unrecognized.
func NormalizeRole(v string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "system", "0":
		return RoleSystem, true
	case "user", "1":
		return RoleUser, true
	case "assistant", "2":
		return RoleAssistant, true
	}
	return "", false
}

// SelectiveLogic controls how secondary keys gate activation.
type SelectiveLogic string

const (
	LogicAndAny SelectiveLogic = "and_any"
	LogicNotAll SelectiveLogic = "not_all"
	LogicNotAny SelectiveLogic = "not_any"
	LogicAndAll SelectiveLogic = "and_all"
)

// NormalizeSelectiveLogic accepts logic names and SillyTavern numeric codes
// (0=and_any 1=not_all 2=not_any 3=and_all). Returns false when unknown.
func NormalizeSelectiveLogic(v string) (SelectiveLogic, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "and_any", "0", "":
		return LogicAndAny, true
	case "not_all", "1":
		return LogicNotAll, true
	case "not_any", "2":
		return LogicNotAny, true
	case "and_all", "3":
		return LogicAndAll, true
	}
	return "", false
}

// Source tags where a book (and its entries) came from. Sources participate
// in fixed insertion ordering: chat before persona before everything else.
type Source string

const (
	SourceGlobal    Source = "global"
	SourceCharacter Source = "character"
	SourceChat      Source = "chat"
	SourcePersona   Source = "persona"
)

// GenerationType tags what kind of generation an evaluation feeds.
// Entries may restrict themselves to a subset via their trigger list.
type GenerationType string

const (
	GenNormal      GenerationType = "normal"
	GenContinue    GenerationType = "continue"
	GenImpersonate GenerationType = "impersonate"
	GenSwipe       GenerationType = "swipe"
	GenRegenerate  GenerationType = "regenerate"
	GenQuiet       GenerationType = "quiet"
)

// KnownGenerationTypes is the set of recognized generation-type tags.
var KnownGenerationTypes = map[GenerationType]bool{
	GenNormal:      true,
	GenContinue:    true,
	GenImpersonate: true,
	GenSwipe:       true,
	GenRegenerate:  true,
	GenQuiet:       true,
}
