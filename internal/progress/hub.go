// Package progress fans out session and dispatch events to every connected
// observer.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a slow subscriber drops events.
//   - There is no replay: a subscriber only sees events published after it
//     subscribed.
package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/metrics"
)

// Event names pushed to observers.
const (
	EventQR     = "qr"
	EventReady  = "ready"
	EventStatus = "status"
)

// Event is one push notification.
type Event struct {
	Name string    `json:"event"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Status is the payload of a status event. Text is the human-readable line
// shown by the browser UI; the other fields let machines follow along.
type Status struct {
	JobID     string          `json:"job_id"`
	Text      string          `json:"text"`
	Index     int             `json:"index,omitempty"`
	Total     int             `json:"total"`
	Recipient string          `json:"recipient,omitempty"`
	Outcome   domain.Outcome  `json:"outcome,omitempty"`
	Error     string          `json:"error,omitempty"`
	Counters  domain.Counters `json:"counters"`
	Final     bool            `json:"final,omitempty"`
}

// Publisher is what event producers depend on.
type Publisher interface {
	Publish(e Event)
}

// Hub is an in-memory fan-out of events. It owns no goroutines.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	seq    atomic.Uint64
	buffer int

	dropped atomic.Uint64
	logger  *slog.Logger
	metrics metrics.Sink
}

// NewHub creates a hub whose subscribers get channels of the given buffer.
func NewHub(buffer int, logger *slog.Logger, sink metrics.Sink) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Hub{
		subs:    make(map[uint64]chan Event),
		buffer:  buffer,
		logger:  logger,
		metrics: sink,
	}
}

// Publish delivers e to all current subscribers without blocking.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Deliver under the read lock so unsubscribe cannot close a channel
	// mid-send; sends are non-blocking so the lock is held briefly.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			n := h.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				h.logger.Warn("Slow observer dropped events",
					slog.String("event", e.Name),
					slog.Uint64("dropped_total", n),
				)
			}
		}
	}
}

// Subscribe registers a new observer. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	id := h.seq.Add(1)

	h.mu.Lock()
	h.subs[id] = ch
	n := len(h.subs)
	h.mu.Unlock()
	h.metrics.Observers(n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			n := len(h.subs)
			close(ch)
			h.mu.Unlock()
			h.metrics.Observers(n)
		})
	}
}

// Observers returns the number of current subscribers.
func (h *Hub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// PublishQR announces a pairing code rendered as an image data URL.
func PublishQR(p Publisher, dataURL string) {
	p.Publish(Event{Name: EventQR, Data: dataURL})
}

// PublishReady announces that the session can send.
func PublishReady(p Publisher, ready bool) {
	p.Publish(Event{Name: EventReady, Data: ready})
}

// PublishStatus announces one dispatch step or a job summary.
func PublishStatus(p Publisher, s Status) {
	p.Publish(Event{Name: EventStatus, Data: s})
}
