package store

import (
	"context"

	"barbearia/backend/internal/domain"
)

// Snapshot is the durable state loaded at startup: the current booking rows
// and the retained tail of the change log in sequence order.
type Snapshot struct {
	Bookings []domain.Booking
	Events   []domain.ChangeEvent
}

// Journal persists committed changes. Record applies the event to the
// booking rows and appends it to the stored log in one transaction.
type Journal interface {
	Record(ctx context.Context, ev domain.ChangeEvent) error
	Load(ctx context.Context) (Snapshot, error)
	Trim(ctx context.Context, before int64) error
	Ping(ctx context.Context) error
}

// CursorStore remembers the last cursor each replication consumer presented.
type CursorStore interface {
	Ack(ctx context.Context, consumer string, cursor int64) error
	Cursors(ctx context.Context) (map[string]int64, error)
}
