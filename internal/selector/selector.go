// Package selector decides which image to present next, skipping images that
// should not be shown again.
//
// Two strategies share the Selector interface: Snapshot never re-serves a
// filename within one process, Windowed re-serves an unlabeled filename once
// its cache timeout has elapsed.
package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/ocrlabel/internal/models"
)

// Strategy names accepted by New.
const (
	KindSnapshot = "snapshot"
	KindWindowed = "windowed"
)

// DefaultCacheTimeout is the re-show delay used by Windowed when none is configured.
const DefaultCacheTimeout = 30 * time.Second

// Selector picks the next image to label.
//
// Next returns apperr.ErrNoMoreImages when the sequence is exhausted and
// apperr.ErrTemporarilyExhausted when every candidate is only blocked by its
// cache window.
type Selector interface {
	Next(ctx context.Context) (models.Image, error)
	MarkLabeled(img models.Image)
	Name() string
}

// Cursor is the part of the cursor store a selector reads and advances.
type Cursor interface {
	Index() int
	Len() int
	Image(i int) (string, bool)
	SetIndex(i int) error
}

// Config selects and parameterises a strategy.
type Config struct {
	Kind         string
	CacheTimeout time.Duration
	// Labeled seeds the Snapshot strategy with filenames already labeled.
	Labeled []string
	// Now overrides the Windowed clock.
	Now func() time.Time
}

// New builds the configured strategy over c.
func New(cfg Config, c Cursor) (Selector, error) {
	switch cfg.Kind {
	case "", KindSnapshot:
		return NewSnapshot(c, cfg.Labeled), nil
	case KindWindowed:
		w := NewWindowed(c, cfg.CacheTimeout)
		if cfg.Now != nil {
			w.now = cfg.Now
		}
		return w, nil
	default:
		return nil, fmt.Errorf("selector: unknown kind %q", cfg.Kind)
	}
}
