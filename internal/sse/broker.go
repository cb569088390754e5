// Package sse pushes labeling changes and progress counts to open labeling
// pages as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/starford/ocrlabel/internal/models"
)

// Event kinds.
const (
	EventCursorUpdated = "cursor.updated"
	EventLabelSaved    = "label.saved"
	EventLabelDetected = "label.detected"
	EventProgress      = "progress.updated"
)

const (
	clientBuffer    = 64
	progressTimeout = 2 * time.Second
)

// ProgressFunc reports the labeling progress carried by progress.updated.
type ProgressFunc func(ctx context.Context) (*models.Progress, error)

// Option configures a Broker.
type Option func(*Broker)

// WithProgress sets the source of progress.updated payloads. Without it no
// progress events are sent.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Broker) { b.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// Broker fans events out to subscribed pages. Every published change also
// schedules a progress.updated event; those are sent at most once per
// throttle interval, and a change inside the interval is reported when it
// ends, so pages always end up with the latest counts.
type Broker struct {
	throttle time.Duration
	progress ProgressFunc
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool

	dirty chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

// NewBroker creates a Broker. A non-positive throttle uses two seconds.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		logger:   slog.Default(),
		clients:  make(map[chan []byte]struct{}),
		dirty:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.progressLoop()
	return b
}

func frame(kind string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", kind, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", kind, payload), nil
}

// fanout queues msg for every client. Slow clients whose buffer is full miss
// the message. It reports false once the broker is closed.
func (b *Broker) fanout(msg []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
	return true
}

// Publish sends a change to every page and schedules a progress update.
// It matches labelservice.Notifier.
func (b *Broker) Publish(kind string, data any) {
	msg, err := frame(kind, data)
	if err != nil {
		b.logger.Warn("sse: drop event", slog.String("error", err.Error()))
		return
	}
	if !b.fanout(msg) {
		return
	}
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

func (b *Broker) progressLoop() {
	defer close(b.done)

	var (
		last  time.Time
		timer *time.Timer
		due   <-chan time.Time
	)
	for {
		select {
		case <-b.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-b.dirty:
			if due != nil {
				continue
			}
			wait := b.throttle - time.Since(last)
			if wait <= 0 {
				b.sendProgress()
				last = time.Now()
				continue
			}
			timer = time.NewTimer(wait)
			due = timer.C
		case <-due:
			due = nil
			b.sendProgress()
			last = time.Now()
		}
	}
}

func (b *Broker) progressFrame() ([]byte, bool) {
	if b.progress == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), progressTimeout)
	defer cancel()
	p, err := b.progress(ctx)
	if err != nil {
		b.logger.Warn("sse: progress unavailable", slog.String("error", err.Error()))
		return nil, false
	}
	msg, err := frame(EventProgress, p)
	if err != nil {
		return nil, false
	}
	return msg, true
}

func (b *Broker) sendProgress() {
	if msg, ok := b.progressFrame(); ok {
		b.fanout(msg)
	}
}

// Subscribe registers a page. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.clients[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a page and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ClientCount returns the number of open pages.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every page and stops progress updates. It is safe to
// call more than once.
func (b *Broker) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for ch := range b.clients {
			delete(b.clients, ch)
			close(ch)
		}
		close(b.stop)
	}
	b.mu.Unlock()
	<-b.done
}

// ServeHTTP streams events to one page (GET /api/events). The current
// progress is sent first so the page does not need a separate request.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if msg, ok := b.progressFrame(); ok {
		_, _ = w.Write(msg)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
