// Package changelog holds the append-only sequence of booking change events
// that consumers read through a cursor.
package changelog

import (
	"errors"
	"fmt"
	"sync"

	"barbearia/backend/internal/domain"
)

var (
	ErrCursorCompacted = errors.New("cursor below retained log window")
	ErrOutOfOrder      = errors.New("change event out of sequence")
)

// Log positions are dense: the event at position p has Seq p. Evicted
// positions are never reused.
type Log struct {
	mu     sync.RWMutex
	base   int64
	events []domain.ChangeEvent
}

func New() *Log {
	return &Log{}
}

// Restore rebuilds a log from a contiguous, ascending run of events, as
// loaded from durable storage.
func Restore(events []domain.ChangeEvent) (*Log, error) {
	l := &Log{}
	if len(events) == 0 {
		return l, nil
	}
	l.base = events[0].Seq
	for i, ev := range events {
		if ev.Seq != l.base+int64(i) {
			return nil, fmt.Errorf("%w: position %d holds seq %d", ErrOutOfOrder, l.base+int64(i), ev.Seq)
		}
	}
	l.events = append(make([]domain.ChangeEvent, 0, len(events)), events...)
	return l, nil
}

// Next is the position the next appended event must carry.
func (l *Log) Next() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base + int64(len(l.events))
}

// Base is the oldest retained position.
func (l *Log) Base() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) Append(ev domain.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.base + int64(len(l.events))
	if ev.Seq != next {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, ev.Seq, next)
	}
	l.events = append(l.events, ev)
	return nil
}

// ReadFrom returns up to limit events starting at cursor and the advanced
// cursor. A cursor at or past the end yields no events and is returned as is.
func (l *Log) ReadFrom(cursor int64, limit int) ([]domain.ChangeEvent, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor < l.base {
		return nil, cursor, ErrCursorCompacted
	}
	next := l.base + int64(len(l.events))
	if cursor >= next || limit <= 0 {
		return []domain.ChangeEvent{}, cursor, nil
	}
	from := int(cursor - l.base)
	to := from + limit
	if to > len(l.events) {
		to = len(l.events)
	}
	out := make([]domain.ChangeEvent, to-from)
	copy(out, l.events[from:to])
	return out, cursor + int64(len(out)), nil
}

// Compact evicts events below upTo. The newest event is always retained so
// the next position survives a reload from storage.
func (l *Log) Compact(upTo int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return 0
	}
	last := l.base + int64(len(l.events)) - 1
	if upTo > last {
		upTo = last
	}
	n := int(upTo - l.base)
	if n <= 0 {
		return 0
	}
	l.events = append([]domain.ChangeEvent(nil), l.events[n:]...)
	l.base = upTo
	return n
}

// Floor is the highest position Compact(upTo) would actually evict below.
func (l *Log) Floor(upTo int64) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return l.base
	}
	last := l.base + int64(len(l.events)) - 1
	if upTo > last {
		upTo = last
	}
	if upTo < l.base {
		return l.base
	}
	return upTo
}
