package lore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBookFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLibraryLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeBookFile(t, dir, "a.json", `{"name":"alpha","entries":[{"uid":1,"content":"x"}]}`)
	b := writeBookFile(t, dir, "b.json", `{"name":"beta","entries":[]}`)

	lib := NewLibrary()
	require.NoError(t, lib.LoadFiles(SourceGlobal, a, b))

	books := lib.Books()
	require.Len(t, books, 2)
	assert.Equal(t, "alpha", books[0].Name)
	assert.Equal(t, "beta", books[1].Name)

	got, ok := lib.Get("alpha")
	require.True(t, ok)
	require.Len(t, got.Entries, 1)
}

func TestLibraryLoadFilesAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeBookFile(t, dir, "good.json", `{"name":"good","entries":[]}`)
	bad := writeBookFile(t, dir, "bad.json", `{{{`)

	lib := NewLibrary()
	err := lib.LoadFiles(SourceGlobal, good, bad, filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	// The good book still loaded.
	_, ok := lib.Get("good")
	assert.True(t, ok)
}

func TestLibraryUnnamedBookFallsBackToPath(t *testing.T) {
	dir := t.TempDir()
	path := writeBookFile(t, dir, "anon.json", `{"entries":[]}`)

	lib := NewLibrary()
	require.NoError(t, lib.LoadFiles(SourceGlobal, path))
	_, ok := lib.Get(path)
	assert.True(t, ok)
}
