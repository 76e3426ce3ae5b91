package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

const defaultEventCapacity = 50

// EventLog keeps the most recent guard events in a bounded ring.
type EventLog struct {
	mu       sync.RWMutex
	events   []domain.GuardEvent
	capacity int
}

func NewEventLog() *EventLog {
	return &EventLog{capacity: defaultEventCapacity}
}

func (l *EventLog) Append(ctx context.Context, ev domain.GuardEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	return nil
}

// Recent returns up to limit events, oldest first. limit <= 0 returns all.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]domain.GuardEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]domain.GuardEvent, len(events))
	copy(out, events)
	return out, nil
}
