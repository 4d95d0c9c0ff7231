package bookings

import (
	"fmt"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/store"
)

// Reason names the admission gate that rejected a request.
type Reason string

const (
	ReasonMissingField Reason = "missing_field"
	ReasonInvalidDate  Reason = "invalid_date"
	ReasonInvalidTime  Reason = "invalid_time"
	ReasonInvalidStep  Reason = "invalid_step"
	ReasonOutOfHours   Reason = "out_of_hours"
	ReasonInvalid      Reason = "invalid"
)

type ValidationError struct {
	Reason Reason
	Field  string
	msg    string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(reason Reason, field, msg string) error {
	return &ValidationError{Reason: reason, Field: field, msg: msg}
}

// ConflictError carries the booking already holding the requested interval.
// It matches store.ErrConflict under errors.Is.
type ConflictError struct {
	With domain.Booking
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already booked at %s on %s", e.With.Barber, e.With.Start, e.With.Date)
}

func (e *ConflictError) Is(target error) bool {
	return target == store.ErrConflict
}
