// Package store holds the append-only, per-session event log.
package store

import (
	"sync"

	"github.com/miradorstack/mirador-proctor/internal/models"
)

// Observer is notified after every append with the event and its position.
type Observer func(seq int, event models.CanonicalEvent)

// Log is an append-only sequence of canonical events kept in insertion
// order, which may differ from timestamp order. Reads are safe while another
// goroutine appends.
type Log struct {
	mu        sync.RWMutex
	events    []models.CanonicalEvent
	observers []Observer
}

// NewLog returns an empty log notifying the given observers on append.
func NewLog(observers ...Observer) *Log {
	return &Log{observers: observers}
}

// Append adds event to the end of the log.
func (l *Log) Append(event models.CanonicalEvent) {
	l.mu.Lock()
	l.events = append(l.events, event)
	seq := len(l.events) - 1
	observers := l.observers
	l.mu.Unlock()

	for _, obs := range observers {
		obs(seq, event)
	}
}

// All returns a copy of the full sequence.
func (l *Log) All() []models.CanonicalEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.CanonicalEvent(nil), l.events...)
}

// Since returns a copy of the events from position seq onwards.
func (l *Log) Since(seq int) []models.CanonicalEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= len(l.events) {
		return nil
	}
	return append([]models.CanonicalEvent(nil), l.events[seq:]...)
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
