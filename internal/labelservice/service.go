// Package labelservice coordinates the cursor store, the selector, the
// dataset and labeled directories and the ledger for the HTTP and MCP layers.
package labelservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/cursor"
	"github.com/starford/ocrlabel/internal/labeltext"
	"github.com/starford/ocrlabel/internal/ledger"
	"github.com/starford/ocrlabel/internal/metrics"
	"github.com/starford/ocrlabel/internal/models"
	"github.com/starford/ocrlabel/internal/selector"
	"github.com/starford/ocrlabel/internal/sse"
	"github.com/starford/ocrlabel/internal/storage"
)

// DefaultTextMaxLen is the longest label accepted on save.
const DefaultTextMaxLen = 15

// Lengths written by a settings form that carries no length fields.
const (
	fallbackMinLength = "3"
	fallbackMaxLength = "3"
)

// ownWriteTTL bounds how long a saved output is remembered for the watcher.
const ownWriteTTL = time.Minute

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// Ledger is the label history the service records into.
type Ledger interface {
	Record(ctx context.Context, l models.Label) (int64, error)
	List(ctx context.Context, limit, offset int) ([]models.Label, int, error)
	Search(ctx context.Context, query string, limit int) ([]models.Label, error)
	CountDataset(ctx context.Context, dataset string) (int, error)
}

// Notifier receives state changes (see the sse.Event* kinds).
type Notifier func(kind string, data any)

// View is everything the labeling page needs for one image.
type View struct {
	Image     models.Image     `json:"image"`
	Fields    labeltext.Fields `json:"fields"`
	Text      string           `json:"text"`
	Index     int              `json:"index"`
	Total     int              `json:"total"`
	UseCase   models.UseCase   `json:"use_case"`
	MinLength string           `json:"min_length"`
	MaxLength string           `json:"max_length"`
}

// SaveRequest labels the image a labeler was shown. Index is the View.Index
// the fields were typed for.
type SaveRequest struct {
	Index int `json:"index" example:"3" validate:"required"`
	labeltext.Fields
}

// Settings mirrors the settings form. Nil lengths mean the field was absent.
type Settings struct {
	MinLength *string `json:"min_length"`
	MaxLength *string `json:"max_length"`
	Plate     bool    `json:"plate"`
}

// Service implements the labeling operations.
type Service struct {
	store        *cursor.Store
	sel          selector.Selector
	data         storage.Provider
	labeled      storage.Provider
	ledger       Ledger
	metrics      *metrics.Metrics
	notify       Notifier
	logger       *slog.Logger
	maxLen       int
	watchLabeled bool

	// own holds outputs written by Save so the watcher does not report them
	// a second time.
	mu  sync.Mutex
	own map[string]time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLedger records every save into l.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithMetrics sets the instruments updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNotifier sets the change callback.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTextMaxLen sets the longest label accepted on save.
func WithTextMaxLen(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithWatchLabeled makes HandleLabeledEvent feed externally written labels into the selector.
func WithWatchLabeled(on bool) Option {
	return func(s *Service) { s.watchLabeled = on }
}

// New creates a Service. data and labeled are the dataset and output directories.
func New(store *cursor.Store, sel selector.Selector, data, labeled storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:   store,
		sel:     sel,
		data:    data,
		labeled: labeled,
		metrics: metrics.New(),
		notify:  func(string, any) {},
		logger:  slog.Default(),
		maxLen:  DefaultTextMaxLen,
		own:     map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current reloads the cursor and returns the next image to label.
// It returns apperr.ErrNoMoreImages or apperr.ErrTemporarilyExhausted when
// nothing can be shown.
func (s *Service) Current(ctx context.Context) (*View, error) {
	if err := s.store.Reload(); err != nil {
		return nil, err
	}
	img, err := s.sel.Next(ctx)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNoMoreImages):
			s.metrics.Exhausted.WithLabelValues("no_more_images").Inc()
		case errors.Is(err, apperr.ErrTemporarilyExhausted):
			s.metrics.Exhausted.WithLabelValues("in_window").Inc()
		}
		return nil, err
	}

	uc := s.store.UseCase()
	fields, err := labeltext.Split(img.Filename, uc)
	if err != nil {
		return nil, err
	}
	minLen, maxLen := s.store.Lengths()

	s.metrics.ImagesServed.WithLabelValues(s.sel.Name()).Inc()
	s.metrics.CursorIndex.Set(float64(s.store.Index()))

	return &View{
		Image:     img,
		Fields:    fields,
		Text:      labeltext.Stem(img.Filename),
		Index:     img.Index,
		Total:     s.store.Len(),
		UseCase:   uc,
		MinLength: minLen,
		MaxLength: maxLen,
	}, nil
}

// Save writes a labeled copy of the image at req.Index, records it and moves
// the cursor past that image. The index must come from the View the text was
// typed for: with several labelers the stored index may already point at
// someone else's image. An index outside the image map is
// apperr.ErrInvalidIndex.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*models.Label, error) {
	source, ok := s.store.Image(req.Index)
	if !ok {
		return nil, fmt.Errorf("labelservice: save index %d: %w", req.Index, apperr.ErrInvalidIndex)
	}
	uc := s.store.UseCase()
	text, err := labeltext.Compose(req.Fields, uc)
	if err != nil {
		return nil, err
	}
	if err := labeltext.CheckLength(text, s.maxLen); err != nil {
		return nil, err
	}
	output, err := labeltext.OutputName(req.Index, text, source)
	if err != nil {
		return nil, err
	}

	s.rememberOwn(output)
	data, err := storage.Copy(s.data, s.labeled, source, output)
	if err != nil {
		s.takeOwn(output)
		return nil, fmt.Errorf("labelservice: copy %s: %w", source, err)
	}
	s.logger.Info("label: wrote image",
		slog.Int("index", req.Index),
		slog.String("source", source),
		slog.String("output", output))

	label := models.Label{
		Dataset:    s.store.DataDir(),
		ImageIndex: req.Index,
		Source:     source,
		Output:     output,
		Text:       text,
		UseCase:    uc,
		Checksum:   sha256sum(data),
	}
	if s.ledger != nil {
		id, err := s.ledger.Record(ctx, label)
		if err != nil {
			s.logger.Warn("label: ledger record failed",
				slog.String("output", output),
				slog.String("error", err.Error()))
		}
		label.ID = id
	}

	s.sel.MarkLabeled(models.Image{Index: req.Index, Filename: source})
	if err := s.store.AdvancePast(req.Index); err != nil {
		return nil, err
	}

	s.metrics.LabelsSaved.Inc()
	s.metrics.CursorIndex.Set(float64(s.store.Index()))
	s.notify(sse.EventLabelSaved, label)
	return &label, nil
}

// rememberOwn records an output about to be written and forgets entries the
// watcher never reported.
func (s *Service) rememberOwn(output string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, at := range s.own {
		if now.Sub(at) > ownWriteTTL {
			delete(s.own, name)
		}
	}
	s.own[output] = now
}

// takeOwn reports whether output was written by Save and forgets it.
func (s *Service) takeOwn(output string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.own[output]
	delete(s.own, output)
	return ok
}

// Skip advances the cursor without labeling.
func (s *Service) Skip(_ context.Context) error {
	if err := s.store.IncreaseIndex(); err != nil {
		return err
	}
	index := s.store.Index()
	s.metrics.Skips.Inc()
	s.metrics.CursorIndex.Set(float64(index))
	s.notify(sse.EventCursorUpdated, map[string]int{"index": index})
	return nil
}

// Jump moves the cursor to a caller-supplied index. Non-numeric or
// non-positive input is rejected with apperr.ErrInvalidIndex and leaves the
// cursor unchanged.
func (s *Service) Jump(_ context.Context, raw string) error {
	i, err := ParseIndex(raw)
	if err != nil {
		s.metrics.Jumps.WithLabelValues("rejected").Inc()
		return err
	}
	if err := s.store.SetIndex(i); err != nil {
		return err
	}
	index := s.store.Index()
	s.metrics.Jumps.WithLabelValues("ok").Inc()
	s.metrics.CursorIndex.Set(float64(index))
	s.notify(sse.EventCursorUpdated, map[string]int{"index": index})
	return nil
}

// ParseIndex validates a jump target.
func ParseIndex(raw string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("labelservice: jump %q: %w", raw, apperr.ErrInvalidIndex)
	}
	if err := validation.Validate(i, validation.Min(1)); err != nil {
		return 0, fmt.Errorf("labelservice: jump %d: %w", i, apperr.ErrInvalidIndex)
	}
	return i, nil
}

// Configure applies the settings form in one cursor write.
//
// Both lengths present: save them and pick the layout from Plate. No min
// length: lengths "3"/"3" and the plate layout. Min without max: nothing.
func (s *Service) Configure(_ context.Context, in Settings) error {
	var minLen, maxLen string
	plate := in.Plate
	switch {
	case in.MinLength == nil:
		minLen, maxLen, plate = fallbackMinLength, fallbackMaxLength, true
	case in.MaxLength == nil:
		return nil
	default:
		minLen, maxLen = strings.TrimSpace(*in.MinLength), strings.TrimSpace(*in.MaxLength)
		if err := validateLengths(minLen, maxLen); err != nil {
			return err
		}
	}

	err := s.store.Update(func(d *cursor.Document) error {
		d.MinLength = minLen
		d.MaxLength = maxLen
		if plate {
			d.UseCase = models.UseCasePlate
		} else {
			d.UseCase = models.UseCaseOCR
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(sse.EventCursorUpdated, map[string]string{
		"use_case":   string(s.store.UseCase()),
		"min_length": minLen,
		"max_length": maxLen,
	})
	return nil
}

func validateLengths(minLen, maxLen string) error {
	rules := []validation.Rule{validation.Required, validation.Match(digitsRe)}
	if err := (validation.Errors{
		"min_length": validation.Validate(minLen, rules...),
		"max_length": validation.Validate(maxLen, rules...),
	}).Filter(); err != nil {
		return fmt.Errorf("labelservice: %v: %w", err, apperr.ErrInvalidSettings)
	}
	lo, _ := strconv.Atoi(minLen)
	hi, _ := strconv.Atoi(maxLen)
	if lo > hi {
		return fmt.Errorf("labelservice: min_length %d > max_length %d: %w", lo, hi, apperr.ErrInvalidSettings)
	}
	return nil
}

// Status summarises progress. The labeled count comes from the ledger when
// present, otherwise from the labeled directory listing.
func (s *Service) Status(ctx context.Context) (*models.Progress, error) {
	if err := s.store.Reload(); err != nil {
		return nil, err
	}
	doc := s.store.Document()

	var labeled int
	if s.ledger != nil {
		n, err := s.ledger.CountDataset(ctx, doc.DataDir)
		if err != nil {
			return nil, err
		}
		labeled = n
	} else {
		names, err := s.labeled.ListImages()
		if err != nil {
			return nil, err
		}
		labeled = len(names)
	}

	return &models.Progress{
		Index:     doc.FileIndexToRead,
		Total:     len(doc.Images),
		Labeled:   labeled,
		UseCase:   doc.UseCase,
		MinLength: doc.MinLength,
		MaxLength: doc.MaxLength,
		Selector:  s.sel.Name(),
		DataDir:   doc.DataDir,
	}, nil
}

// Labels returns ledger entries: a search when query is set, otherwise the newest page.
func (s *Service) Labels(ctx context.Context, query string, limit, offset int) ([]models.Label, int, error) {
	if s.ledger == nil {
		return []models.Label{}, 0, nil
	}
	if query != "" {
		out, err := s.ledger.Search(ctx, query, limit)
		if err != nil {
			return nil, 0, err
		}
		return out, len(out), nil
	}
	return s.ledger.List(ctx, limit, offset)
}

// ImagePath resolves a dataset image for serving.
func (s *Service) ImagePath(name string) (string, error) {
	if !storage.IsImage(name) || !s.data.Exists(name) {
		return "", fmt.Errorf("labelservice: image %q: %w", name, apperr.ErrNotFound)
	}
	return s.data.Path(name)
}

// HandleLabeledEvent reacts to a file appearing in the labeled directory.
// Copies named "<index>_<text><ext>" written by another process are
// reported as label.detected; with watch-labeled on, the matching source
// image is also marked labeled. Copies written by Save were already
// announced as label.saved and are ignored.
func (s *Service) HandleLabeledEvent(kind, name string) {
	if kind != ledger.EventCreated || s.takeOwn(name) {
		return
	}
	index, text, ok := labeltext.ParseOutputName(name)
	if !ok {
		return
	}
	source, ok := s.store.Image(index)
	if !ok {
		return
	}
	if s.watchLabeled {
		s.sel.MarkLabeled(models.Image{Index: index, Filename: source})
	}
	s.notify(sse.EventLabelDetected, map[string]any{
		"index":  index,
		"source": source,
		"output": name,
		"text":   text,
	})
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
