package sse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ocrlabel/internal/models"
)

type message struct {
	kind string
	data string
}

func parse(t *testing.T, raw []byte) message {
	t.Helper()
	var m message
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			m.kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			m.data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NotEmpty(t, m.kind, "frame %q", raw)
	return m
}

// collect reads messages from ch until quiet passes without one.
func collect(t *testing.T, ch chan []byte, quiet time.Duration) []message {
	t.Helper()
	var out []message
	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, parse(t, raw))
		case <-time.After(quiet):
			return out
		}
	}
}

func progressOf(t *testing.T, msgs []message) []models.Progress {
	t.Helper()
	var out []models.Progress
	for _, m := range msgs {
		if m.kind != EventProgress {
			continue
		}
		var p models.Progress
		require.NoError(t, json.Unmarshal([]byte(m.data), &p))
		out = append(out, p)
	}
	return out
}

// counter is a progress source whose labeled count the test moves.
type counter struct{ labeled atomic.Int64 }

func (c *counter) progress(context.Context) (*models.Progress, error) {
	return &models.Progress{Index: int(c.labeled.Load()) + 1, Total: 10, Labeled: int(c.labeled.Load())}, nil
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	assert.Zero(t, b.ClientCount())
	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())
	b.Unsubscribe(ch)
	assert.Zero(t, b.ClientCount())

	_, ok := <-ch
	assert.False(t, ok, "unsubscribed channel is closed")
	b.Unsubscribe(ch)
}

func TestPublishFrame(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()

	b.Publish(EventCursorUpdated, map[string]int{"index": 4})

	msgs := collect(t, ch, 50*time.Millisecond)
	require.Len(t, msgs, 1, "no progress source, no progress event")
	assert.Equal(t, EventCursorUpdated, msgs[0].kind)
	assert.JSONEq(t, `{"index":4}`, msgs[0].data)
}

func TestProgressCarriesLatestCounts(t *testing.T) {
	c := &counter{}
	b := NewBroker(150*time.Millisecond, WithProgress(c.progress))
	defer b.Close()
	ch := b.Subscribe()

	c.labeled.Store(1)
	b.Publish(EventLabelSaved, map[string]string{"output": "1_A.jpg"})
	c.labeled.Store(2)
	b.Publish(EventLabelSaved, map[string]string{"output": "2_B.jpg"})
	c.labeled.Store(3)
	b.Publish(EventLabelSaved, map[string]string{"output": "3_C.jpg"})

	msgs := collect(t, ch, 400*time.Millisecond)

	saved := 0
	for _, m := range msgs {
		if m.kind == EventLabelSaved {
			saved++
		}
	}
	assert.Equal(t, 3, saved)

	progress := progressOf(t, msgs)
	require.NotEmpty(t, progress)
	assert.LessOrEqual(t, len(progress), 2, "updates inside the window are coalesced")
	final := progress[len(progress)-1]
	assert.Equal(t, 3, final.Labeled)
	assert.Equal(t, 4, final.Index)
	assert.Equal(t, 10, final.Total)
}

func TestProgressSourceErrorSkipsUpdate(t *testing.T) {
	failing := func(context.Context) (*models.Progress, error) { return nil, errors.New("cursor unreadable") }
	b := NewBroker(10*time.Millisecond, WithProgress(failing))
	defer b.Close()
	ch := b.Subscribe()

	b.Publish(EventCursorUpdated, map[string]int{"index": 2})

	msgs := collect(t, ch, 100*time.Millisecond)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventCursorUpdated, msgs[0].kind)
}

func TestServeHTTPSendsProgressFirst(t *testing.T) {
	c := &counter{}
	c.labeled.Store(5)
	b := NewBroker(10*time.Millisecond, WithProgress(c.progress))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(EventLabelDetected, map[string]string{"output": "3_X.jpg"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	first := strings.Index(body, "event: "+EventProgress)
	detected := strings.Index(body, "event: "+EventLabelDetected)
	require.GreaterOrEqual(t, first, 0, body)
	require.Greater(t, detected, first, body)
	assert.Contains(t, body, `"labeled":5`)

	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer+10; i++ {
			b.Publish(EventCursorUpdated, map[string]int{"index": i})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full client")
	}
	assert.Len(t, ch, clientBuffer)
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()

	_, ok := <-ch
	assert.False(t, ok, "subscriber channel closed")
	assert.Zero(t, b.ClientCount())

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")

	b.Publish(EventLabelSaved, nil)
	b.Close()
}
