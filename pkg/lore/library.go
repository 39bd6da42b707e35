package lore

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Library loads and holds a set of books. Loading many book files is the one
// place this package does I/O; decoding runs concurrently but the resulting
// book list is deterministic (sorted by name).
type Library struct {
	mu    sync.RWMutex
	books map[string]Book
}

func NewLibrary() *Library {
	return &Library{books: make(map[string]Book)}
}

// Add inserts or replaces a book under its name.
func (l *Library) Add(book Book) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[book.Name] = book
}

// Get looks a book up by name.
func (l *Library) Get(name string) (Book, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[name]
	return b, ok
}

// Books returns all books sorted by name.
func (l *Library) Books() []Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Book, 0, len(l.books))
	for _, b := range l.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadFiles reads and decodes the given JSON book files concurrently,
// adding each decoded book to the library. All files are attempted; the
// returned error aggregates every failure.
func (l *Library) LoadFiles(source Source, paths ...string) error {
	p := pool.New().WithErrors().WithMaxGoroutines(8)
	for _, path := range paths {
		path := path
		p.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			book, err := BookFromJSON(data, source)
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			if book.Name == "" {
				book.Name = path
			}
			l.Add(book)
			return nil
		})
	}
	return p.Wait()
}
