// Package testutil provides shared test helpers for datasets, cursor stores and ledgers.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ocrlabel/internal/cursor"
	"github.com/starford/ocrlabel/internal/ledger"
)

// Dataset creates <tmp>/data holding the named files (content = name) and an
// empty <tmp>/labeled directory.
func Dataset(t *testing.T, names ...string) (dataDir, labeledDir string) {
	t.Helper()
	root := t.TempDir()
	dataDir = filepath.Join(root, "data")
	labeledDir = filepath.Join(root, "labeled")
	for _, dir := range []string{dataDir, labeledDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dataDir, n), []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dataDir, labeledDir
}

// Store opens a cursor store over a fresh dataset.
func Store(t *testing.T, opts []cursor.Option, names ...string) *cursor.Store {
	t.Helper()
	dataDir, labeledDir := Dataset(t, names...)
	s, err := cursor.Open(dataDir, labeledDir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// Ledger opens a temporary SQLite ledger that is closed on cleanup.
func Ledger(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "labels.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
