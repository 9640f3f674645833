package webhook

import (
	"sync"
	"time"
)

// DefaultEventExpiry is how long processed event ids are remembered.
const DefaultEventExpiry = 24 * time.Hour

// EventLog remembers processed event ids so replays can be recognised in logs.
// It never blocks reprocessing.
type EventLog struct {
	mu      sync.RWMutex
	events  map[string]time.Time
	expiry  time.Duration
	now     func() time.Time
	cleanup time.Time
}

func NewEventLog(expiry time.Duration) *EventLog {
	if expiry <= 0 {
		expiry = DefaultEventExpiry
	}
	return &EventLog{
		events: make(map[string]time.Time),
		expiry: expiry,
		now:    time.Now,
	}
}

// Seen reports whether id was recorded within the expiry window.
func (l *EventLog) Seen(id string) bool {
	if id == "" {
		return false
	}
	l.mu.RLock()
	recorded, ok := l.events[id]
	l.mu.RUnlock()
	return ok && l.now().Sub(recorded) <= l.expiry
}

// Record stores id and prunes expired entries at most once a minute.
func (l *EventLog) Record(id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.events[id] = now
	if now.Sub(l.cleanup) > time.Minute {
		for key, recorded := range l.events {
			if now.Sub(recorded) > l.expiry {
				delete(l.events, key)
			}
		}
		l.cleanup = now
	}
}

// Len returns the number of remembered ids.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
