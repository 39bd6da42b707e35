package lore

import (
	"regexp"
	"strconv"
	"strings"
)

// Decorators holds parsed `@@name value` directives, keyed by lower-cased
// decorator name. Values are typed per decorator: bool for flags, int for
// numeric decorators, []string for list decorators, string otherwise.
type Decorators map[string]interface{}

// ParsedContent is the outcome of scanning an entry's content for inline
// decorators.
type ParsedContent struct {
	Decorators         Decorators
	FallbackDecorators Decorators
	Content            string
}

var decoratorLine = regexp.MustCompile(`^(@@@?)([A-Za-z_][A-Za-z0-9_]*)(?:[ \t]+(.*))?$`)

// Decorator names that always parse to boolean true.
var flagDecorators = map[string]bool{
	"constant":              true,
	"dont_activate":         true,
	"activate":              true,
	"ignore_on_max_context": true,
	"use_regex":             true,
	"case_sensitive":        true,
}

// Decorator names whose value parses as an integer (non-numeric input
// degrades to 0).
var numericDecorators = map[string]bool{
	"depth":               true,
	"scan_depth":          true,
	"activate_only_after": true,
	"activate_only_every": true,
}

// Decorator names whose value is a comma-separated list.
var listDecorators = map[string]bool{
	"additional_keys": true,
	"exclude_keys":    true,
}

// ParseDecorators scans content line-by-line from the top. Blank lines are
// skipped without terminating the block; `@@@name` lines collect into the
// fallback map, `@@name` lines into the standard map; the first line that is
// neither ends the block and begins the returned content.
func ParseDecorators(content string) ParsedContent {
	result := ParsedContent{
		Decorators:         Decorators{},
		FallbackDecorators: Decorators{},
	}
	if content == "" {
		return result
	}

	lines := strings.Split(content, "\n")
	body := 0
	for body < len(lines) {
		line := lines[body]
		if strings.TrimSpace(line) == "" {
			body++
			continue
		}
		m := decoratorLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			break
		}
		name := strings.ToLower(m[2])
		value := decodeDecoratorValue(name, strings.TrimSpace(m[3]))
		if m[1] == "@@@" {
			result.FallbackDecorators[name] = value
		} else {
			result.Decorators[name] = value
		}
		body++
	}

	if body < len(lines) {
		result.Content = strings.Join(lines[body:], "\n")
	}
	return result
}

func decodeDecoratorValue(name, value string) interface{} {
	switch {
	case flagDecorators[name]:
		return true
	case numericDecorators[name]:
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return n
	case listDecorators[name]:
		var items []string
		for _, part := range strings.Split(value, ",") {
			if t := strings.TrimSpace(part); t != "" {
				items = append(items, t)
			}
		}
		return items
	case name == "role":
		if role, ok := NormalizeRole(value); ok {
			return string(role)
		}
		return nil
	case name == "position":
		return string(NormalizePosition(value))
	default:
		return value
	}
}

// Apply returns a copy of the entry with the selected decorator map's fields
// overwritten. Fallback decorators are selected when the entry activated via
// recursion rather than a direct keyword match.
func (p ParsedContent) Apply(entry Entry, isFallback bool) Entry {
	decs := p.Decorators
	if isFallback {
		decs = p.FallbackDecorators
	}
	return applyDecorators(entry, decs)
}

func applyDecorators(entry Entry, decs Decorators) Entry {
	for name, value := range decs {
		switch name {
		case "depth":
			entry.Depth = value.(int)
		case "scan_depth":
			n := value.(int)
			entry.ScanDepth = &n
		case "activate_only_after":
			entry.ActivateOnlyAfter = value.(int)
		case "activate_only_every":
			entry.ActivateOnlyEvery = value.(int)
		case "role":
			if s, ok := value.(string); ok {
				entry.Role = Role(s)
			}
		case "position":
			entry.Position = Position(value.(string))
		case "constant":
			entry.Constant = true
		case "dont_activate":
			entry.DontActivate = true
		case "activate":
			entry.DontActivate = false
		case "ignore_on_max_context":
			entry.IgnoreOnMaxContext = true
		case "use_regex":
			entry.UseRegex = true
		case "case_sensitive":
			cs := true
			entry.CaseSensitive = &cs
		case "additional_keys":
			entry.Keys = unionKeys(entry.Keys, value.([]string))
		case "exclude_keys":
			entry.ExcludeKeys = append([]string(nil), value.([]string)...)
		case "sticky", "cooldown", "delay":
			// These carry string values; effective only when numeric.
			n, err := strconv.Atoi(strings.TrimSpace(coerceString(value)))
			if err != nil || n < 0 {
				continue
			}
			switch name {
			case "sticky":
				entry.Sticky = n
			case "cooldown":
				entry.Cooldown = n
			case "delay":
				entry.Delay = n
			}
		}
	}
	return entry
}

func unionKeys(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, k := range existing {
		seen[k] = true
	}
	for _, k := range extra {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
