package guard

import (
	"sync"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// eventQueue serializes all producer pushes (vision frames, transcripts,
// commands, ticks) into one ordered stream for the engine's single consumer.
//
// The queue is unbounded so producers never block; a buffered signal channel
// of size 1 coalesces wakeups for the consumer loop.
type eventQueue struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]domain.Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Safe from any goroutine. Returns false if the
// queue has been closed.
func (q *eventQueue) Enqueue(ev domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front event without blocking.
func (q *eventQueue) TryDequeue() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return domain.Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Wait returns a channel that fires when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
