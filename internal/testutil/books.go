package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteBookFile writes content to <dir>/<id>.<ext> and returns the path.
// The test fails if the file cannot be written.
func WriteBookFile(t testing.TB, dir string, id int64, ext, content string) string {
	t.Helper()
	path := filepath.Join(dir, strconv.FormatInt(id, 10)+"."+ext)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write book file %s: %v", path, err)
	}
	return path
}

// BookDir creates a temporary books directory holding an epub and a mobi
// file for each id.
func BookDir(t testing.TB, ids ...int64) string {
	t.Helper()
	dir := t.TempDir()
	for _, id := range ids {
		WriteBookFile(t, dir, id, "epub", "epub-"+strconv.FormatInt(id, 10))
		WriteBookFile(t, dir, id, "mobi", "mobi-"+strconv.FormatInt(id, 10))
	}
	return dir
}
