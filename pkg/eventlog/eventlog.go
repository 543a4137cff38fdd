// Package eventlog provides the append-only, capacity-bounded store of
// emitted events.
package eventlog

import (
	"sync"
	"time"

	"github.com/modernmen/pulse/pkg/models"
)

// DefaultCapacity matches the window the original system retained.
const DefaultCapacity = 1000

// Log is a FIFO ring of the most recent events. Appending past capacity
// evicts the oldest entry.
type Log struct {
	mu       sync.RWMutex
	capacity int
	events   []*models.SystemEvent
	start    int
	size     int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Log{
		capacity: capacity,
		events:   make([]*models.SystemEvent, capacity),
	}
}

// Append stores an event, evicting the oldest one when full.
func (l *Log) Append(event *models.SystemEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < l.capacity {
		l.events[(l.start+l.size)%l.capacity] = event
		l.size++

		return
	}

	l.events[l.start] = event
	l.start = (l.start + 1) % l.capacity
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.size
}

// Capacity returns the maximum number of retained events.
func (l *Log) Capacity() int {
	return l.capacity
}

// Recent returns up to n retained events, oldest first. n <= 0 returns all.
func (l *Log) Recent(n int) []*models.SystemEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.size {
		n = l.size
	}

	out := make([]*models.SystemEvent, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.events[(l.start+i)%l.capacity])
	}

	return out
}

// Prune drops retained events older than the cutoff. Returns how many were
// removed.
func (l *Log) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0

	for l.size > 0 {
		oldest := l.events[l.start]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}

		l.events[l.start] = nil
		l.start = (l.start + 1) % l.capacity
		l.size--
		removed++
	}

	return removed
}
