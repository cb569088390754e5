package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
	"github.com/starford/ocrlabel/internal/storage"
)

// Store owns one cursor document and its file.
//
// Every mutation goes through Update, which rewrites the whole file once.
// The mutex only protects the in-memory copy; separate processes writing the
// same file still race and the last write wins.
type Store struct {
	mu       sync.Mutex
	path     string
	overflow Overflow
	logger   *slog.Logger
	doc      Document
}

// Option configures a Store.
type Option func(*Store)

// WithOverflow sets the policy SetIndex applies past the last image.
func WithOverflow(o Overflow) Option {
	return func(s *Store) {
		if o != "" {
			s.overflow = o
		}
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPath overrides the derived cursor file location.
func WithPath(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.path = path
		}
	}
}

// Open validates both directories, creates the cursor file on first use by
// scanning data for images, and loads the document from disk.
func Open(dataDir, labeledDir string, opts ...Option) (*Store, error) {
	data, err := storage.NewFS(dataDir)
	if err != nil {
		return nil, fmt.Errorf("cursor: dataset: %w", err)
	}
	if _, err := storage.NewFS(labeledDir); err != nil {
		return nil, fmt.Errorf("cursor: labeled dir: %w", err)
	}

	s := &Store{
		path:     PathFor(dataDir),
		overflow: OverflowClamp,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		names, err := data.ListImages()
		if err != nil {
			return nil, fmt.Errorf("cursor: scan dataset: %w", err)
		}
		if err := writeDocument(s.path, newDocument(dataDir, names)); err != nil {
			return nil, err
		}
		s.logger.Info("cursor: created",
			slog.String("path", s.path),
			slog.Int("images", len(names)))
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the document from disk, replacing the in-memory copy.
func (s *Store) Reload() error {
	doc, err := readDocument(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Update applies fn to the document and flushes it. If fn or the write
// fails the in-memory document is left as it was.
func (s *Store) Update(fn func(d *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc.Clone()
	if err := fn(&s.doc); err != nil {
		s.doc = prev
		return err
	}
	if err := writeDocument(s.path, s.doc); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// SetIndex moves the read position. Indices below 1 are rejected; indices
// past the last image follow the store's overflow policy.
func (s *Store) SetIndex(i int) error {
	if i < 1 {
		return fmt.Errorf("cursor: set index %d: %w", i, apperr.ErrInvalidIndex)
	}
	return s.Update(func(d *Document) error {
		d.FileIndexToRead = bound(i, len(d.Images), s.overflow)
		return nil
	})
}

// IncreaseIndex advances the read position by one.
func (s *Store) IncreaseIndex() error {
	return s.Update(func(d *Document) error {
		d.FileIndexToRead = bound(d.FileIndexToRead+1, len(d.Images), s.overflow)
		return nil
	})
}

// AdvancePast moves the read position to i+1 when it is not already past i.
// A labeler finishing image i must not pull back a cursor that another
// labeler has moved on.
func (s *Store) AdvancePast(i int) error {
	return s.Update(func(d *Document) error {
		if d.FileIndexToRead <= i {
			d.FileIndexToRead = bound(i+1, len(d.Images), s.overflow)
		}
		return nil
	})
}

// SaveLengths overwrites the advisory label length bounds.
func (s *Store) SaveLengths(minLength, maxLength string) error {
	return s.Update(func(d *Document) error {
		d.MinLength = minLength
		d.MaxLength = maxLength
		return nil
	})
}

// SetUseCase switches between the plate and OCR layouts.
func (s *Store) SetUseCase(isPlate bool) error {
	return s.Update(func(d *Document) error {
		if isPlate {
			d.UseCase = models.UseCasePlate
		} else {
			d.UseCase = models.UseCaseOCR
		}
		return nil
	})
}

// Path returns the cursor file location.
func (s *Store) Path() string { return s.path }

// Overflow returns the configured overflow policy.
func (s *Store) Overflow() Overflow { return s.overflow }

// Index returns file_index_to_read.
func (s *Store) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.FileIndexToRead
}

// Len returns the number of entries in the image map.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Images)
}

// Image returns the filename at index i.
func (s *Store) Image(i int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.doc.Images[i]
	return name, ok
}

// Images returns a copy of the image map.
func (s *Store) Images() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone().Images
}

// UseCase returns the current label layout.
func (s *Store) UseCase() models.UseCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.UseCase
}

// Lengths returns the min and max label length bounds as stored.
func (s *Store) Lengths() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.MinLength, s.doc.MaxLength
}

// DataDir returns the dataset directory recorded in the document.
func (s *Store) DataDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.DataDir
}

// Document returns a copy of the whole document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func readDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("cursor: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("cursor: decode %s: %w", path, err)
	}
	if doc.Images == nil {
		doc.Images = map[int]string{}
	}
	if doc.UseCase == "" {
		doc.UseCase = models.UseCaseOCR
	}
	if !doc.UseCase.Valid() {
		return Document{}, fmt.Errorf("cursor: %s: unknown use_case %q", path, doc.UseCase)
	}
	return doc, nil
}

func writeDocument(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor: encode: %w", err)
	}
	if err := storage.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("cursor: write %s: %w", path, err)
	}
	return nil
}
