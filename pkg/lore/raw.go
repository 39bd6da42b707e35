package lore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Raw is the original heterogeneous source map an Entry or Book was built
// from. It is retained read-only for legacy-field fallback lookups; the only
// consumer after construction is the case-sensitivity / whole-word override
// resolver.
type Raw map[string]interface{}

// Lookup resolves a logical field through an ordered list of candidate
// names: each name is tried at the top level first, then inside an
// "extensions" sub-object. The first present name wins, even when its value
// is null.
func (r Raw) Lookup(names ...string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	for _, name := range names {
		if v, ok := r[name]; ok {
			return v, true
		}
	}
	ext, ok := r["extensions"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	for _, name := range names {
		if v, ok := ext[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// String field with default.
func (r Raw) String(def string, names ...string) string {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return def
	}
	return coerceString(v)
}

// Int field with default. Accepts numbers, numeric strings and bools.
func (r Raw) Int(def int, names ...string) int {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return def
	}
	if n, ok := coerceInt(v); ok {
		return n
	}
	return def
}

// Bool field with default.
func (r Raw) Bool(def bool, names ...string) bool {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return def
	}
	if b, ok := coerceBool(v); ok {
		return b
	}
	return def
}

// OptBool preserves the unset state: nil means "inherit the engine default".
func (r Raw) OptBool(names ...string) *bool {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return nil
	}
	if b, ok := coerceBool(v); ok {
		return &b
	}
	return nil
}

// OptInt preserves the unset state for nullable numeric fields.
func (r Raw) OptInt(names ...string) *int {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return nil
	}
	if n, ok := coerceInt(v); ok {
		return &n
	}
	return nil
}

// Keys parses a key-list field (list or comma-separated string).
func (r Raw) Keys(names ...string) []string {
	v, ok := r.Lookup(names...)
	if !ok {
		return nil
	}
	return ParseKeyList(v)
}

// StringList parses a list-of-strings field without comma splitting.
func (r Raw) StringList(names ...string) []string {
	v, ok := r.Lookup(names...)
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, 0, len(list))
		for _, s := range list {
			if t := strings.TrimSpace(s); t != "" {
				out = append(out, t)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if e == nil {
				continue
			}
			if t := strings.TrimSpace(coerceString(e)); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return ParseKeyList(v)
	}
}

func coerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a trailing ".0" so uids compare cleanly.
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off", "":
			return false, true
		}
		return false, false
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0, err == nil
	default:
		return false, false
	}
}
