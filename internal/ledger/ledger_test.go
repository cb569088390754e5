package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ocrlabel/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "labels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func record(t *testing.T, db *DB, dataset string, idx int, source, text string) int64 {
	t.Helper()
	id, err := db.Record(context.Background(), models.Label{
		Dataset:    dataset,
		ImageIndex: idx,
		Source:     source,
		Output:     "out_" + source,
		Text:       text,
		UseCase:    models.UseCaseOCR,
		Checksum:   "abc",
	})
	require.NoError(t, err)
	return id
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM labels`).Scan(&count))
	assert.Zero(t, count)
}

func TestRecordAndList(t *testing.T) {
	db := testDB(t)
	first := record(t, db, "/data", 1, "a.jpg", "HELLO")
	second := record(t, db, "/data", 2, "b.jpg", "WORLD")
	assert.Greater(t, second, first)

	labels, total, err := db.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, labels, 2)
	assert.Equal(t, "b.jpg", labels[0].Source, "newest first")
	assert.Equal(t, models.UseCaseOCR, labels[0].UseCase)
	assert.Equal(t, "abc", labels[0].Checksum)
	assert.WithinDuration(t, time.Now(), labels[0].CreatedAt, time.Minute)

	page, _, err := db.List(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a.jpg", page[0].Source)

	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLabeledSourcesPerDataset(t *testing.T) {
	db := testDB(t)
	record(t, db, "/one", 1, "a.jpg", "x")
	record(t, db, "/one", 1, "a.jpg", "y")
	record(t, db, "/one", 2, "b.jpg", "z")
	record(t, db, "/two", 1, "c.jpg", "w")

	got, err := db.LabeledSources(context.Background(), "/one")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got)

	n, err := db.CountDataset(context.Background(), "/one")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	record(t, db, "/data", 1, "a.jpg", "uniquetoken")
	record(t, db, "/data", 2, "b.jpg", "other")

	results, err := db.Search(context.Background(), "uniquetoken", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.jpg", results[0].Source)
}
