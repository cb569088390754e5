package selector

import (
	"context"
	"sync"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
)

// Snapshot serves every filename at most once per process. The seen set
// starts with the filenames labeled before startup and grows with every
// image handed out, so two concurrent requests never get the same image.
// An image fetched and then abandoned is not offered again until restart.
type Snapshot struct {
	mu     sync.Mutex
	cursor Cursor
	seen   map[string]struct{}
}

// NewSnapshot returns a Snapshot seeded with already-labeled filenames.
func NewSnapshot(c Cursor, labeled []string) *Snapshot {
	seen := make(map[string]struct{}, len(labeled))
	for _, name := range labeled {
		seen[name] = struct{}{}
	}
	return &Snapshot{cursor: c, seen: seen}
}

// Name implements Selector.
func (s *Snapshot) Name() string { return KindSnapshot }

// Next walks forward from the stored index, persisting each skip, and returns
// the first filename not yet seen.
func (s *Snapshot) Next(ctx context.Context) (models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cursor.Index()
	for {
		if err := ctx.Err(); err != nil {
			return models.Image{}, err
		}
		name, ok := s.cursor.Image(i)
		if !ok {
			return models.Image{}, apperr.ErrNoMoreImages
		}
		if _, seen := s.seen[name]; !seen {
			s.seen[name] = struct{}{}
			return models.Image{Index: i, Filename: name}, nil
		}
		i++
		if err := s.cursor.SetIndex(i); err != nil {
			return models.Image{}, err
		}
	}
}

// MarkLabeled implements Selector.
func (s *Snapshot) MarkLabeled(img models.Image) {
	s.mu.Lock()
	s.seen[img.Filename] = struct{}{}
	s.mu.Unlock()
}
