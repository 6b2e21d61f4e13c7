package telemetry

import "sync"

// Provider returns the most recent record, or nil when none has been seen.
type Provider interface {
	Get() Record
}

// Latest is a Provider holding the last record it was given. It is safe for
// concurrent use.
type Latest struct {
	mu     sync.RWMutex
	record Record
}

// Set replaces the held record.
func (l *Latest) Set(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record = r
}

func (l *Latest) Get() Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.record
}
