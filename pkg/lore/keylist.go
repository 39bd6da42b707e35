package lore

import (
	"fmt"
	"strings"
)

// ParseKeyList normalizes a raw key specification into an ordered list of
// key strings. It accepts nil, a single comma-separated string, or a list
// of values (each stringified). Tokens are trimmed; empty tokens dropped.
func ParseKeyList(input interface{}) []string {
	switch v := input.(type) {
	case nil:
		return nil
	case string:
		return SplitKeys(v)
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if t := strings.TrimSpace(s); t != "" {
				out = append(out, t)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			if t := strings.TrimSpace(fmt.Sprintf("%v", e)); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return SplitKeys(fmt.Sprintf("%v", v))
	}
}

// splitState tracks where the comma splitter is inside a token.
type splitState int

const (
	splitNormal splitState = iota
	splitRegex             // inside /pattern/
	splitFlags             // after the closing slash
)

// SplitKeys splits a comma-separated key string into tokens. Commas inside a
// leading /pattern/flags regex literal are not split points. A token only
// enters regex mode when the slash is its first non-space character, so
// "km/h, mph" still splits on the comma.
func SplitKeys(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var tokens []string
	var buf strings.Builder
	state := splitNormal
	escaped := false

	flush := func() {
		if t := strings.TrimSpace(buf.String()); t != "" {
			tokens = append(tokens, t)
		}
		buf.Reset()
		state = splitNormal
		escaped = false
	}

	for _, r := range s {
		switch state {
		case splitNormal:
			switch {
			case r == ',':
				flush()
			case r == '/' && strings.TrimSpace(buf.String()) == "":
				state = splitRegex
				buf.WriteRune(r)
			default:
				buf.WriteRune(r)
			}
		case splitRegex:
			buf.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '/':
				state = splitFlags
			}
		case splitFlags:
			if r == ',' {
				flush()
			} else {
				buf.WriteRune(r)
			}
		}
	}
	flush()

	return tokens
}
