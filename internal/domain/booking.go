package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Booking is one appointment on a barber's calendar for a single day.
// The occupied interval is the half-open [Start, Start+Duration).
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Phone     string    `bun:"phone,notnull" json:"phone"`
	Email     string    `bun:"email" json:"email"`
	Service   string    `bun:"service,notnull" json:"service"`
	Barber    string    `bun:"barber,notnull" json:"barber"`
	Date      string    `bun:"date,notnull" json:"date"`
	Start     Clock     `bun:"start_min,notnull" json:"time"`
	Duration  int       `bun:"duration,notnull" json:"dur"`
	Notes     string    `bun:"notes" json:"notes"`
	Status    Status    `bun:"status,notnull" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (b Booking) End() int { return b.Start.Minutes() + b.Duration }

func (b Booking) Active() bool { return b.Status != StatusCancelled }

// Overlaps reports whether the booking's interval intersects [start, end).
// Touching intervals do not overlap.
func (b Booking) Overlaps(start, end int) bool {
	return b.Start.Minutes() < end && start < b.End()
}

// SameRecord compares every replicated field except UpdatedAt.
func (b Booking) SameRecord(o Booking) bool {
	return b.ID == o.ID &&
		b.Name == o.Name &&
		b.Phone == o.Phone &&
		b.Email == o.Email &&
		b.Service == o.Service &&
		b.Barber == o.Barber &&
		b.Date == o.Date &&
		b.Start == o.Start &&
		b.Duration == o.Duration &&
		b.Notes == o.Notes &&
		b.Status == o.Status &&
		b.CreatedAt.Equal(o.CreatedAt)
}

// NewBookingID returns a time-ordered UUIDv7 string.
func NewBookingID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == "" {
			id, err := NewBookingID()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
