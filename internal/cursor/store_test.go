package cursor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
)

// dataset creates <tmp>/data with the given files and an empty <tmp>/labeled.
func dataset(t *testing.T, names ...string) (string, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	labeledDir := filepath.Join(root, "labeled")
	require.NoError(t, os.Mkdir(dataDir, 0o755))
	require.NoError(t, os.Mkdir(labeledDir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, n), []byte(n), 0o644))
	}
	return dataDir, labeledDir
}

func openStore(t *testing.T, opts []Option, names ...string) *Store {
	t.Helper()
	dataDir, labeledDir := dataset(t, names...)
	s, err := Open(dataDir, labeledDir, opts...)
	require.NoError(t, err)
	return s
}

func TestPathFor(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/srv/sets", "ocr-labeling-cursor-plates-cursor.json"),
		PathFor("/srv/sets/plates"))
	assert.Equal(t,
		filepath.Join("/srv/sets", "ocr-labeling-cursor-plates-cursor.json"),
		PathFor("/srv/sets/plates/"))
	assert.Equal(t, "ocr-labeling-cursor-data-cursor.json", PathFor("data"))
}

func TestOpen_ScansImages(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.png", "c.txt", "d.jpeg")

	assert.Equal(t, map[int]string{1: "a.jpg", 2: "b.png", 3: "d.jpeg"}, s.Images())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1, s.Index())
	assert.Equal(t, models.UseCaseOCR, s.UseCase())
	minLen, maxLen := s.Lengths()
	assert.Equal(t, DefaultMinLength, minLen)
	assert.Equal(t, DefaultMaxLength, maxLen)

	_, err := os.Stat(s.Path())
	require.NoError(t, err, "cursor file should exist")
}

func TestOpen_FileFormat(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.png")

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	assert.Equal(t, float64(1), m["file_index_to_read"])
	assert.Equal(t, map[string]any{"1": "a.jpg", "2": "b.png"}, m["images"])
	assert.Equal(t, "10", m["min_length"])
	assert.Equal(t, "15", m["max_length"])
	assert.Equal(t, "ocr", m["use_case"])
	assert.Contains(t, m, "data_dir")
}

func TestOpen_ExistingCursorNotRegenerated(t *testing.T) {
	dataDir, labeledDir := dataset(t, "a.jpg", "b.jpg")
	s, err := Open(dataDir, labeledDir)
	require.NoError(t, err)
	require.NoError(t, s.SetIndex(2))

	// New files after creation must not appear in the map.
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "c.jpg"), []byte("c"), 0o644))

	again, err := Open(dataDir, labeledDir)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
	assert.Equal(t, 2, again.Index())
}

func TestOpen_MissingDirectories(t *testing.T) {
	dataDir, labeledDir := dataset(t)

	_, err := Open(filepath.Join(dataDir, "nope"), labeledDir)
	assert.True(t, errors.Is(err, apperr.ErrDirectoryNotFound), "dataset: %v", err)

	_, err = Open(dataDir, filepath.Join(labeledDir, "nope"))
	assert.True(t, errors.Is(err, apperr.ErrDirectoryNotFound), "labeled: %v", err)
}

func TestOpen_SparseMapLoaded(t *testing.T) {
	dataDir, labeledDir := dataset(t, "a.jpg")
	doc := `{"file_index_to_read": 2, "images": {"1": "a.jpg", "3": "c.jpg"},
		"data_dir": "x", "min_length": "1", "max_length": "9", "use_case": "plate"}`
	require.NoError(t, os.WriteFile(PathFor(dataDir), []byte(doc), 0o644))

	s, err := Open(dataDir, labeledDir)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	_, ok := s.Image(2)
	assert.False(t, ok)
	name, ok := s.Image(3)
	assert.True(t, ok)
	assert.Equal(t, "c.jpg", name)
	assert.Equal(t, models.UseCasePlate, s.UseCase())
}

func TestSetIndex_Clamp(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.jpg", "c.jpg")

	require.NoError(t, s.SetIndex(2))
	assert.Equal(t, 2, s.Index())

	require.NoError(t, s.SetIndex(99))
	assert.Equal(t, 3, s.Index())
}

func TestSetIndex_Wrap(t *testing.T) {
	s := openStore(t, []Option{WithOverflow(OverflowWrap)}, "a.jpg", "b.jpg", "c.jpg")

	require.NoError(t, s.SetIndex(4))
	assert.Equal(t, 1, s.Index())
}

func TestSetIndex_RejectsNonPositive(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.jpg")
	require.NoError(t, s.SetIndex(2))

	for _, i := range []int{0, -3} {
		err := s.SetIndex(i)
		assert.ErrorIs(t, err, apperr.ErrInvalidIndex)
		assert.Equal(t, 2, s.Index(), "index must not change")
	}
}

func TestSetIndex_EmptyDataset(t *testing.T) {
	s := openStore(t, nil)
	require.NoError(t, s.SetIndex(5))
	assert.Equal(t, 1, s.Index())
}

func TestIncreaseIndex_ReachesBoundaryAtN(t *testing.T) {
	const n = 4
	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}

	clamp := openStore(t, nil, names...)
	wrap := openStore(t, []Option{WithOverflow(OverflowWrap)}, names...)

	for call := 1; call < n; call++ {
		require.NoError(t, clamp.IncreaseIndex())
		require.NoError(t, wrap.IncreaseIndex())
		assert.Equal(t, call+1, clamp.Index())
		assert.Equal(t, call+1, wrap.Index())
	}

	require.NoError(t, clamp.IncreaseIndex())
	require.NoError(t, wrap.IncreaseIndex())
	assert.Equal(t, n, clamp.Index(), "clamp stays at N")
	assert.Equal(t, 1, wrap.Index(), "wrap returns to 1")
}

func TestAdvancePast(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.jpg", "c.jpg")

	require.NoError(t, s.AdvancePast(1))
	assert.Equal(t, 2, s.Index())

	require.NoError(t, s.SetIndex(3))
	require.NoError(t, s.AdvancePast(1))
	assert.Equal(t, 3, s.Index(), "a cursor already past i stays put")

	require.NoError(t, s.AdvancePast(3))
	assert.Equal(t, 3, s.Index(), "clamped at N")

	wrap := openStore(t, []Option{WithOverflow(OverflowWrap)}, "a.jpg", "b.jpg")
	require.NoError(t, wrap.SetIndex(2))
	require.NoError(t, wrap.AdvancePast(2))
	assert.Equal(t, 1, wrap.Index())
}

func TestMutatorsPersist(t *testing.T) {
	dataDir, labeledDir := dataset(t, "a.jpg", "b.jpg")
	s, err := Open(dataDir, labeledDir)
	require.NoError(t, err)

	require.NoError(t, s.IncreaseIndex())
	require.NoError(t, s.SaveLengths("3", "7"))
	require.NoError(t, s.SetUseCase(true))

	fresh, err := Open(dataDir, labeledDir)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Index())
	minLen, maxLen := fresh.Lengths()
	assert.Equal(t, "3", minLen)
	assert.Equal(t, "7", maxLen)
	assert.Equal(t, models.UseCasePlate, fresh.UseCase())

	require.NoError(t, s.SetUseCase(false))
	require.NoError(t, fresh.Reload())
	assert.Equal(t, models.UseCaseOCR, fresh.UseCase())
}

func TestRoundTrip(t *testing.T) {
	s := openStore(t, nil, "a.jpg", "b.png", "d.jpeg")
	require.NoError(t, s.Update(func(d *Document) error {
		d.FileIndexToRead = 3
		d.MinLength = "2"
		d.MaxLength = "8"
		d.UseCase = models.UseCasePlate
		return nil
	}))
	before := s.Document()

	require.NoError(t, s.Reload())
	assert.Equal(t, before, s.Document())
}

func TestReloadDiscardsExternalState(t *testing.T) {
	dataDir, labeledDir := dataset(t, "a.jpg", "b.jpg", "c.jpg")
	first, err := Open(dataDir, labeledDir)
	require.NoError(t, err)
	second, err := Open(dataDir, labeledDir)
	require.NoError(t, err)

	require.NoError(t, second.SetIndex(3))
	assert.Equal(t, 1, first.Index())

	require.NoError(t, first.Reload())
	assert.Equal(t, 3, first.Index())
}

func TestUpdate_FailureKeepsMemoryState(t *testing.T) {
	dataDir, labeledDir := dataset(t, "a.jpg", "b.jpg")
	cursorDir := filepath.Join(t.TempDir(), "cursors")
	require.NoError(t, os.Mkdir(cursorDir, 0o755))

	s, err := Open(dataDir, labeledDir, WithPath(filepath.Join(cursorDir, "c.json")))
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(cursorDir))
	err = s.IncreaseIndex()
	require.Error(t, err)
	assert.Equal(t, 1, s.Index())

	sentinel := errors.New("boom")
	err = s.Update(func(d *Document) error {
		d.FileIndexToRead = 2
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, s.Index())
}

func TestDocumentIsCopy(t *testing.T) {
	s := openStore(t, nil, "a.jpg")
	doc := s.Document()
	doc.Images[1] = "changed.jpg"
	imgs := s.Images()
	imgs[2] = "extra.jpg"

	name, _ := s.Image(1)
	assert.Equal(t, "a.jpg", name)
	assert.Equal(t, 1, s.Len())
}
