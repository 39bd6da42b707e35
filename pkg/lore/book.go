package lore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Book is a named collection of entries plus the book-level scan settings.
type Book struct {
	Name              string
	Source            Source
	ScanDepth         *int // default scan window for this book's entries
	TokenBudget       *int // nil = no budget contribution
	RecursiveScanning bool
	Entries           []Entry
}

// NewBook normalizes a raw book map. Entries may arrive as a list or, as in
// SillyTavern exports, a map of uid to entry; map form is flattened in uid
// order so construction stays deterministic.
func NewBook(raw Raw, source Source) Book {
	name := raw.String("", "name", "book_name", "bookName", "world")
	book := Book{
		Name:              name,
		Source:            source,
		ScanDepth:         raw.OptInt("scan_depth", "scanDepth"),
		TokenBudget:       raw.OptInt("token_budget", "tokenBudget"),
		RecursiveScanning: raw.Bool(false, "recursive_scanning", "recursiveScanning", "recursive"),
	}

	switch entries := rawEntries(raw).(type) {
	case []interface{}:
		for _, e := range entries {
			if m, ok := e.(map[string]interface{}); ok {
				book.Entries = append(book.Entries, NewEntry(Raw(m), name, source))
			}
		}
	case map[string]interface{}:
		uids := make([]string, 0, len(entries))
		for uid := range entries {
			uids = append(uids, uid)
		}
		sort.Slice(uids, func(i, j int) bool { return lessUID(uids[i], uids[j]) })
		for _, uid := range uids {
			m, ok := entries[uid].(map[string]interface{})
			if !ok {
				continue
			}
			if _, has := m["uid"]; !has {
				// Map form keys entries by uid; keep it on the entry.
				m = cloneMap(m)
				m["uid"] = uid
			}
			book.Entries = append(book.Entries, NewEntry(Raw(m), name, source))
		}
	}

	return book
}

func rawEntries(raw Raw) interface{} {
	if v, ok := raw.Lookup("entries"); ok {
		return v
	}
	return nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lessUID orders numeric uids numerically and falls back to lexical order.
func lessUID(a, b string) bool {
	var na, nb int
	_, errA := fmt.Sscanf(a, "%d", &na)
	_, errB := fmt.Sscanf(b, "%d", &nb)
	if errA == nil && errB == nil && fmt.Sprint(na) == a && fmt.Sprint(nb) == b {
		return na < nb
	}
	return a < b
}

// BookFromJSON decodes one book payload.
func BookFromJSON(data []byte, source Source) (Book, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Book{}, fmt.Errorf("failed to decode book: %w", err)
	}
	return NewBook(Raw(raw), source), nil
}
