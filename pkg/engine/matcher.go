// Package engine implements the lore activation engine: key matching, timed
// effects, inclusion groups and the multi-pass evaluation loop that decides
// which entries are injected into a prompt within a token budget.
package engine

import (
	"regexp"
	"strings"
	"sync"
)

// regexCache holds compiled patterns keyed by their final Go source form.
// Entries are tiny and books are reused across evaluations, so the cache is
// never evicted. Failed compiles cache as nil so bad patterns stay cheap.
var regexCache sync.Map // string -> *regexp.Regexp

// MatchKey decides whether one candidate key matches the haystack under the
// given case-sensitivity, whole-word and regex settings. Invalid regex
// patterns never match and never raise.
func MatchKey(key, text string, caseSensitive, matchWholeWords, useRegex bool) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	// A /pattern/flags literal is always treated as regex, regardless of
	// the use_regex setting.
	if pattern, flags, ok := parseRegexLiteral(key); ok {
		return regexMatch(pattern, jsFlagsToGo(flags), text)
	}
	if useRegex {
		prefix := ""
		if !caseSensitive {
			prefix = "(?i)"
		}
		return regexMatch(key, prefix, text)
	}

	haystack := text
	needle := key
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}

	if !matchWholeWords {
		return strings.Contains(haystack, needle)
	}
	// Whole-word boundaries do not apply to multi-word phrases.
	if strings.ContainsAny(needle, " \t") {
		return strings.Contains(haystack, needle)
	}
	return containsWholeWord(haystack, needle)
}

// MatchingKeys returns the subset of keys that match, preserving order.
func MatchingKeys(keys []string, text string, caseSensitive, matchWholeWords, useRegex bool) []string {
	var matched []string
	for _, k := range keys {
		if MatchKey(k, text, caseSensitive, matchWholeWords, useRegex) {
			matched = append(matched, k)
		}
	}
	return matched
}

// parseRegexLiteral recognizes JS-style /pattern/flags literals. The closing
// slash is the last unescaped slash; everything after it must look like a
// flag sequence.
func parseRegexLiteral(key string) (pattern, flags string, ok bool) {
	if len(key) < 2 || key[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(key, '/')
	if end <= 0 || escapedAt(key, end) {
		return "", "", false
	}
	flags = key[end+1:]
	for _, r := range flags {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", "", false
		}
	}
	return key[1:end], flags, true
}

// escapedAt reports whether the byte at index i is preceded by an odd number
// of backslashes.
func escapedAt(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// jsFlagsToGo converts JS regex flags to a Go inline-flag prefix. Flags
// without an RE2 counterpart (g, u, y, d, v) are ignored.
func jsFlagsToGo(flags string) string {
	var b strings.Builder
	for _, f := range flags {
		switch f {
		case 'i':
			b.WriteString("i")
		case 'm':
			b.WriteString("m")
		case 's':
			b.WriteString("s")
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

func regexMatch(pattern, prefix, text string) bool {
	source := prefix + pattern
	if cached, ok := regexCache.Load(source); ok {
		re, _ := cached.(*regexp.Regexp)
		return re != nil && re.MatchString(text)
	}
	re, err := regexp.Compile(source)
	if err != nil {
		regexCache.Store(source, (*regexp.Regexp)(nil))
		return false
	}
	regexCache.Store(source, re)
	return re.MatchString(text)
}

// containsWholeWord reports whether needle occurs in haystack flanked by
// start/end of string or a non-word character. Word characters are
// [A-Za-z0-9_], mirroring a JS \W boundary rather than Unicode classes.
func containsWholeWord(haystack, needle string) bool {
	for from := 0; from <= len(haystack)-len(needle); {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(needle)
		if (start == 0 || !isWordByte(haystack[start-1])) &&
			(end == len(haystack) || !isWordByte(haystack[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
