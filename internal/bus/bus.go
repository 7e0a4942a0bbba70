// Package bus is a small in-process pub/sub fan-out. The pipeline publishes
// progress events; the HTTP event stream and tests subscribe. Publishing
// never blocks: a subscriber that cannot keep up loses events rather than
// stalling the pipeline.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the pipeline.
const (
	EventReceived   = "received"
	EventRouted     = "routed"
	EventJobStarted = "job_started"
	EventWritten    = "written"
	EventSkipped    = "skipped"
	EventFailed     = "failed"
)

// Event is one observable pipeline step.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Key    string    `json:"key,omitempty"`
	Path   string    `json:"path,omitempty"`
	Model  string    `json:"model,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
	closed bool
	logger zerolog.Logger
}

func New(buffer int, logger zerolog.Logger) *Bus {
	if buffer < 1 {
		buffer = 16
	}
	return &Bus{
		subs:   map[int]chan Event{},
		buffer: buffer,
		logger: logger,
	}
}

// Publish fans the event out. Missing ID and timestamp are filled in.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug().Int("subscriber", id).Str("type", e.Type).Msg("event dropped for slow subscriber")
		}
	}
}

// Subscribe returns a receive channel and a cancel function. The channel is
// closed by cancel or by Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close drops and closes every subscription. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
