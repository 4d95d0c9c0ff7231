package bookings

import (
	"fmt"

	"barbearia/backend/internal/domain"
)

type CancelPolicy string

const (
	// CancelUpsert keeps the record as a tombstone with status cancelled.
	CancelUpsert CancelPolicy = "upsert"
	// CancelDelete removes the record and emits a delete event.
	CancelDelete CancelPolicy = "delete"
)

type Policy struct {
	Open        domain.Clock
	Close       domain.Clock
	Step        int
	MinDuration int
	MaxDuration int
	Cancel      CancelPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Open:        9 * 60,
		Close:       20 * 60,
		Step:        5,
		MinDuration: 15,
		MaxDuration: 240,
		Cancel:      CancelUpsert,
	}
}

func (p Policy) Validate() error {
	if !p.Open.Valid() || p.Close.Minutes() > domain.MinutesPerDay || p.Open >= p.Close {
		return fmt.Errorf("business hours [%d,%d] invalid", p.Open.Minutes(), p.Close.Minutes())
	}
	if p.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", p.Step)
	}
	if p.MinDuration <= 0 || p.MinDuration > p.MaxDuration {
		return fmt.Errorf("duration bounds [%d,%d] invalid", p.MinDuration, p.MaxDuration)
	}
	if p.MaxDuration > p.Close.Minutes()-p.Open.Minutes() {
		return fmt.Errorf("max duration %d exceeds business hours", p.MaxDuration)
	}
	switch p.Cancel {
	case CancelUpsert, CancelDelete:
	default:
		return fmt.Errorf("unknown cancel policy %q", p.Cancel)
	}
	return nil
}

// Clamp pulls a requested duration into [MinDuration, MaxDuration].
func (p Policy) Clamp(duration int) int {
	if duration < p.MinDuration {
		return p.MinDuration
	}
	if duration > p.MaxDuration {
		return p.MaxDuration
	}
	return duration
}
