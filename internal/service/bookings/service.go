package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barbearia/backend/internal/availability"
	"barbearia/backend/internal/changelog"
	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/store"
)

var tracer = otel.Tracer("barbearia/bookings")

// Publisher fans committed change events out to other systems.
type Publisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

type Deps struct {
	// Journal is optional; without it state lives only in memory.
	Journal   store.Journal
	Publisher Publisher
	Logger    *slog.Logger
}

// Service is the authoritative booking store. One lock covers the booking
// map, the conflict index and the change log, so a conflict check and the
// write it guards are atomic with respect to other writers.
type Service struct {
	mu       sync.RWMutex
	policy   Policy
	bookings map[string]domain.Booking
	index    *availability.Index
	changes  *changelog.Log

	journal store.Journal
	pub     Publisher
	log     *slog.Logger

	now   func() time.Time
	newID func() (string, error)
}

func NewService(policy Policy, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		policy:   policy,
		bookings: make(map[string]domain.Booking),
		index:    availability.NewIndex(),
		changes:  changelog.New(),
		journal:  deps.Journal,
		pub:      deps.Publisher,
		log:      log.With(slog.String("component", "bookings")),
		now:      time.Now,
		newID:    domain.NewBookingID,
	}
}

// Policy returns the admission policy the service was built with.
func (s *Service) Policy() Policy {
	return s.policy
}

// Hydrate replaces in-memory state with the journal's snapshot.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	snap, err := s.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	changes, err := changelog.Restore(snap.Events)
	if err != nil {
		return fmt.Errorf("restore change log: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = make(map[string]domain.Booking, len(snap.Bookings))
	s.index = availability.NewIndex()
	for _, b := range snap.Bookings {
		s.bookings[b.ID] = b
		s.index.Put(b)
	}
	s.changes = changes

	s.log.Info(
		"state hydrated",
		slog.Int("bookings", len(snap.Bookings)),
		slog.Int64("log_base", changes.Base()),
		slog.Int64("log_next", changes.Next()),
	)
	return nil
}

type AdmitInput struct {
	Name     string
	Phone    string
	Email    string
	Service  string
	Barber   string
	Date     string
	Time     string
	Duration int
	Notes    string
}

// Admit runs the admission gates in order and stores the booking. The first
// failing gate decides the error.
func (s *Service) Admit(ctx context.Context, in AdmitInput) (domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.Admit", trace.WithAttributes(
		attribute.String("barber", in.Barber),
		attribute.String("date", in.Date),
	))
	defer span.End()

	cand, err := s.candidate(in)
	if err != nil {
		return domain.Booking{}, err
	}

	s.mu.Lock()
	if other, ok := s.index.Conflict(cand.Date, cand.Barber, cand.Start.Minutes(), cand.Duration, ""); ok {
		s.mu.Unlock()
		return domain.Booking{}, &ConflictError{With: other}
	}
	id, err := s.newID()
	if err != nil {
		s.mu.Unlock()
		return domain.Booking{}, fmt.Errorf("generate booking id: %w", err)
	}
	now := s.now().UTC()
	cand.ID = id
	cand.Status = domain.StatusBooked
	cand.CreatedAt = now
	cand.UpdatedAt = now

	ev, err := s.commitLocked(ctx, domain.UpsertEvent(cand))
	s.mu.Unlock()
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, ev)
	return cand, nil
}

// Patch holds the fields an edit replaces; nil leaves a field unchanged.
type Patch struct {
	Name     *string
	Phone    *string
	Email    *string
	Service  *string
	Barber   *string
	Date     *string
	Time     *string
	Duration *int
	Notes    *string
}

// Edit re-validates the patched record against every other booking. On any
// failure the stored record is left untouched.
func (s *Service) Edit(ctx context.Context, id string, p Patch) (domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.Edit", trace.WithAttributes(attribute.String("booking_id", id)))
	defer span.End()

	s.mu.Lock()
	cur, ok := s.bookings[id]
	if !ok {
		s.mu.Unlock()
		return domain.Booking{}, store.ErrNotFound
	}
	if !cur.Active() {
		s.mu.Unlock()
		return domain.Booking{}, validationError(ReasonInvalid, "status", "booking is cancelled")
	}

	cand, err := s.candidate(applyPatch(cur, p))
	if err != nil {
		s.mu.Unlock()
		return domain.Booking{}, err
	}
	if other, ok := s.index.Conflict(cand.Date, cand.Barber, cand.Start.Minutes(), cand.Duration, id); ok {
		s.mu.Unlock()
		return domain.Booking{}, &ConflictError{With: other}
	}

	cand.ID = cur.ID
	cand.Status = cur.Status
	cand.CreatedAt = cur.CreatedAt
	if cand.SameRecord(cur) {
		s.mu.Unlock()
		return cur, nil
	}
	cand.UpdatedAt = s.now().UTC()

	ev, err := s.commitLocked(ctx, domain.UpsertEvent(cand))
	s.mu.Unlock()
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, ev)
	return cand, nil
}

func applyPatch(cur domain.Booking, p Patch) AdmitInput {
	in := AdmitInput{
		Name:     cur.Name,
		Phone:    cur.Phone,
		Email:    cur.Email,
		Service:  cur.Service,
		Barber:   cur.Barber,
		Date:     cur.Date,
		Time:     cur.Start.String(),
		Duration: cur.Duration,
		Notes:    cur.Notes,
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&in.Name, p.Name)
	set(&in.Phone, p.Phone)
	set(&in.Email, p.Email)
	set(&in.Service, p.Service)
	set(&in.Barber, p.Barber)
	set(&in.Date, p.Date)
	set(&in.Time, p.Time)
	set(&in.Notes, p.Notes)
	if p.Duration != nil {
		in.Duration = *p.Duration
	}
	return in
}

// Cancel marks a booking cancelled, or removes it when the policy is
// CancelDelete. Cancelling an already cancelled booking is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.Cancel", trace.WithAttributes(attribute.String("booking_id", id)))
	defer span.End()

	s.mu.Lock()
	cur, ok := s.bookings[id]
	if !ok {
		s.mu.Unlock()
		return domain.Booking{}, store.ErrNotFound
	}

	cancelled := cur
	cancelled.Status = domain.StatusCancelled
	cancelled.UpdatedAt = s.now().UTC()

	var ev domain.ChangeEvent
	switch s.policy.Cancel {
	case CancelDelete:
		ev = domain.DeleteEvent(id)
	default:
		if !cur.Active() {
			s.mu.Unlock()
			return cur, nil
		}
		ev = domain.UpsertEvent(cancelled)
	}

	ev, err := s.commitLocked(ctx, ev)
	s.mu.Unlock()
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, ev)
	return cancelled, nil
}

// Delete removes a booking and emits a delete event.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "bookings.Delete", trace.WithAttributes(attribute.String("booking_id", id)))
	defer span.End()

	s.mu.Lock()
	if _, ok := s.bookings[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	ev, err := s.commitLocked(ctx, domain.DeleteEvent(id))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, ev)
	return nil
}

// CheckExternal validates the structure of an event received from a peer.
// Admission gates beyond the record's own shape are not applied.
func CheckExternal(ev domain.ChangeEvent) error {
	switch ev.Op {
	case domain.OpUpsert:
		if ev.Booking == nil || strings.TrimSpace(ev.Booking.ID) == "" {
			return validationError(ReasonMissingField, "id", "upsert payload requires id")
		}
		b := ev.Booking
		if _, ok := domain.ParseDate(b.Date); !ok {
			return validationError(ReasonInvalidDate, "date", fmt.Sprintf("booking %s: date must be YYYY-MM-DD", b.ID))
		}
		if !b.Start.Valid() || b.Duration <= 0 || b.End() > domain.MinutesPerDay {
			return validationError(ReasonInvalidTime, "time", fmt.Sprintf("booking %s: interval outside the day", b.ID))
		}
		switch b.Status {
		case "", domain.StatusBooked, domain.StatusCancelled:
		default:
			return validationError(ReasonInvalid, "status", fmt.Sprintf("booking %s: unknown status %q", b.ID, b.Status))
		}
	case domain.OpDelete:
		if strings.TrimSpace(ev.BookingID) == "" {
			return validationError(ReasonMissingField, "id", "delete payload requires id")
		}
	default:
		return validationError(ReasonInvalid, "op", fmt.Sprintf("unknown op %q", ev.Op))
	}
	return nil
}

// ApplyExternal folds a peer's change into the store: upsert is a full
// record replace by id, delete removes by id and tolerates absence. It
// reports whether the event was applied.
func (s *Service) ApplyExternal(ctx context.Context, ev domain.ChangeEvent) (bool, error) {
	if err := CheckExternal(ev); err != nil {
		return false, err
	}

	s.mu.Lock()
	var out domain.ChangeEvent
	switch ev.Op {
	case domain.OpUpsert:
		b := *ev.Booking
		b.ID = strings.TrimSpace(b.ID)
		if b.Status == "" {
			b.Status = domain.StatusBooked
		}
		cur, exists := s.bookings[b.ID]
		if b.CreatedAt.IsZero() {
			if exists {
				b.CreatedAt = cur.CreatedAt
			} else {
				b.CreatedAt = s.now().UTC()
			}
		}
		if exists && cur.SameRecord(b) {
			s.mu.Unlock()
			return true, nil
		}
		b.UpdatedAt = s.now().UTC()
		out = domain.UpsertEvent(b)
	case domain.OpDelete:
		id := strings.TrimSpace(ev.BookingID)
		if _, ok := s.bookings[id]; !ok {
			s.mu.Unlock()
			return false, nil
		}
		out = domain.DeleteEvent(id)
	}

	committed, err := s.commitLocked(ctx, out)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	s.publish(ctx, committed)
	return true, nil
}

func (s *Service) Get(id string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

// FreeSlots lists the start times on the grid where a booking of the given
// duration would be admitted right now.
func (s *Service) FreeSlots(date, barber string, duration int) ([]domain.Clock, error) {
	date = strings.TrimSpace(date)
	barber = strings.TrimSpace(barber)
	if barber == "" {
		return nil, validationError(ReasonMissingField, "barber", "missing required field: barber")
	}
	if _, ok := domain.ParseDate(date); !ok {
		return nil, validationError(ReasonInvalidDate, "date", "date must be YYYY-MM-DD")
	}
	duration = s.policy.Clamp(duration)
	if !domain.Quantized(duration, s.policy.Step) {
		return nil, validationError(ReasonInvalidStep, "dur", fmt.Sprintf("duration must be a multiple of %d minutes", s.policy.Step))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.FreeSlots(date, barber, duration, s.policy.Open.Minutes(), s.policy.Close.Minutes(), s.policy.Step), nil
}

// Busy lists the active bookings of a day for one barber, ordered by start.
func (s *Service) Busy(date, barber string) ([]domain.Booking, error) {
	date = strings.TrimSpace(date)
	barber = strings.TrimSpace(barber)
	if barber == "" {
		return nil, validationError(ReasonMissingField, "barber", "missing required field: barber")
	}
	if _, ok := domain.ParseDate(date); !ok {
		return nil, validationError(ReasonInvalidDate, "date", "date must be YYYY-MM-DD")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Busy(date, barber), nil
}

// Changes reads the change log from cursor.
func (s *Service) Changes(cursor int64, limit int) ([]domain.ChangeEvent, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes.ReadFrom(cursor, limit)
}

// Compact evicts change events below upTo from the journal and the log.
func (s *Service) Compact(ctx context.Context, upTo int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	floor := s.changes.Floor(upTo)
	if floor <= s.changes.Base() {
		return 0, nil
	}
	if s.journal != nil {
		if err := s.journal.Trim(ctx, floor); err != nil {
			return 0, fmt.Errorf("trim journal below %d: %w", floor, err)
		}
	}
	return s.changes.Compact(floor), nil
}

type Stats struct {
	Bookings int
	Active   int
	LogBase  int64
	LogNext  int64
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Bookings: len(s.bookings),
		Active:   s.index.Len(),
		LogBase:  s.changes.Base(),
		LogNext:  s.changes.Next(),
	}
}

// Ping reports whether the journal is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Ping(ctx)
}

// candidate applies gates one to five and returns the normalized record.
func (s *Service) candidate(in AdmitInput) (domain.Booking, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Service = strings.TrimSpace(in.Service)
	in.Barber = strings.TrimSpace(in.Barber)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.Notes = strings.TrimSpace(in.Notes)
	if len(in.Time) > 5 {
		in.Time = in.Time[:5]
	}

	required := []struct {
		field string
		value string
	}{
		{"name", in.Name},
		{"phone", in.Phone},
		{"service", in.Service},
		{"barber", in.Barber},
		{"date", in.Date},
		{"time", in.Time},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.Booking{}, validationError(ReasonMissingField, r.field, "missing required field: "+r.field)
		}
	}
	if in.Duration == 0 {
		return domain.Booking{}, validationError(ReasonMissingField, "dur", "missing required field: dur")
	}

	if _, ok := domain.ParseDate(in.Date); !ok {
		return domain.Booking{}, validationError(ReasonInvalidDate, "date", "date must be YYYY-MM-DD")
	}
	start, ok := domain.ParseTime(in.Time)
	if !ok {
		return domain.Booking{}, validationError(ReasonInvalidTime, "time", "time must be HH:MM")
	}

	duration := s.policy.Clamp(in.Duration)
	if !domain.Quantized(start.Minutes(), s.policy.Step) {
		return domain.Booking{}, validationError(ReasonInvalidStep, "time", fmt.Sprintf("time must fall on a %d-minute step", s.policy.Step))
	}
	if !domain.Quantized(duration, s.policy.Step) {
		return domain.Booking{}, validationError(ReasonInvalidStep, "dur", fmt.Sprintf("duration must be a multiple of %d minutes", s.policy.Step))
	}

	if !domain.WithinHours(start.Minutes(), duration, s.policy.Open.Minutes(), s.policy.Close.Minutes()) {
		return domain.Booking{}, validationError(ReasonOutOfHours, "time", fmt.Sprintf("outside business hours %s-%s", s.policy.Open, s.policy.Close))
	}

	return domain.Booking{
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		Service:  in.Service,
		Barber:   in.Barber,
		Date:     in.Date,
		Start:    start,
		Duration: duration,
		Notes:    in.Notes,
	}, nil
}

// commitLocked journals the event, appends it to the log and applies it to
// the in-memory state. Callers hold s.mu for writing.
func (s *Service) commitLocked(ctx context.Context, ev domain.ChangeEvent) (domain.ChangeEvent, error) {
	ev.Seq = s.changes.Next()
	ev.At = s.now().UTC()

	if s.journal != nil {
		if err := s.journal.Record(ctx, ev); err != nil {
			return domain.ChangeEvent{}, fmt.Errorf("journal change %d: %w", ev.Seq, err)
		}
	}
	if err := s.changes.Append(ev); err != nil {
		return domain.ChangeEvent{}, err
	}

	switch ev.Op {
	case domain.OpUpsert:
		s.bookings[ev.BookingID] = *ev.Booking
		s.index.Put(*ev.Booking)
	case domain.OpDelete:
		delete(s.bookings, ev.BookingID)
		s.index.Remove(ev.BookingID)
	}
	return ev, nil
}

func (s *Service) publish(ctx context.Context, ev domain.ChangeEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishChange(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn(
			"change publish failed",
			slog.Any("err", err),
			slog.Int64("seq", ev.Seq),
			slog.String("op", string(ev.Op)),
			slog.String("booking_id", ev.BookingID),
		)
	}
}
