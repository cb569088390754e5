package selector

import (
	"context"
	"sync"
	"time"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
)

// Windowed re-serves an unlabeled image once cacheTimeout has passed since it
// was last handed out. Labeled state is tracked for this process only; labels
// written by other processes are not seen.
type Windowed struct {
	mu      sync.Mutex
	cursor  Cursor
	timeout time.Duration
	now     func() time.Time

	labeledNames map[string]struct{}
	labeledIdx   map[int]struct{}
	lastServed   map[string]time.Time
}

// NewWindowed returns a Windowed selector. A non-positive timeout uses DefaultCacheTimeout.
func NewWindowed(c Cursor, timeout time.Duration) *Windowed {
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	return &Windowed{
		cursor:       c,
		timeout:      timeout,
		now:          time.Now,
		labeledNames: map[string]struct{}{},
		labeledIdx:   map[int]struct{}{},
		lastServed:   map[string]time.Time{},
	}
}

// Name implements Selector.
func (w *Windowed) Name() string { return KindWindowed }

// Next scans from the stored index and returns the first image that is not
// labeled and outside its window. The stored index is left on the returned
// image; skipped images advance it, restarting at 1 past the end. Each index
// is visited at most once per call.
func (w *Windowed) Next(ctx context.Context) (models.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	n := w.cursor.Len()
	i := w.cursor.Index()
	blocked := false

	for visited := 0; visited < n; visited++ {
		if err := ctx.Err(); err != nil {
			return models.Image{}, err
		}
		name, ok := w.cursor.Image(i)
		if !ok {
			return models.Image{}, apperr.ErrNoMoreImages
		}

		_, doneName := w.labeledNames[name]
		_, doneIdx := w.labeledIdx[i]
		if !doneName && !doneIdx {
			last, served := w.lastServed[name]
			if !served || now.Sub(last) > w.timeout {
				w.lastServed[name] = now
				return models.Image{Index: i, Filename: name}, nil
			}
			blocked = true
		}

		next := i + 1
		if _, ok := w.cursor.Image(next); !ok {
			next = 1
		}
		if err := w.cursor.SetIndex(next); err != nil {
			return models.Image{}, err
		}
		i = next
	}

	if blocked {
		return models.Image{}, apperr.ErrTemporarilyExhausted
	}
	return models.Image{}, apperr.ErrNoMoreImages
}

// MarkLabeled implements Selector.
func (w *Windowed) MarkLabeled(img models.Image) {
	w.mu.Lock()
	w.labeledNames[img.Filename] = struct{}{}
	w.labeledIdx[img.Index] = struct{}{}
	w.mu.Unlock()
}
