package replication

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/service/bookings"
	"barbearia/backend/internal/store"
)

var tracer = otel.Tracer("barbearia/replication")

// Bookings is the part of the booking store replication drives.
type Bookings interface {
	Changes(cursor int64, limit int) ([]domain.ChangeEvent, int64, error)
	Compact(ctx context.Context, upTo int64) (int, error)
	ApplyExternal(ctx context.Context, ev domain.ChangeEvent) (bool, error)
}

type Config struct {
	Secret          string
	DefaultLimit    int
	MaxLimit        int
	DefaultConsumer string
}

// Service exposes the change log to a peer and folds the peer's changes
// back in. Every call is gated on the shared secret.
type Service struct {
	bookings Bookings
	// cursors is optional; without it the log is never compacted.
	cursors store.CursorStore
	cfg     Config
	log     *slog.Logger
}

func NewService(b Bookings, cursors store.CursorStore, cfg Config, log *slog.Logger) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.DefaultConsumer == "" {
		cfg.DefaultConsumer = "bridge"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		bookings: b,
		cursors:  cursors,
		cfg:      cfg,
		log:      log.With(slog.String("component", "replication")),
	}
}

// Authorize compares secret with the configured one in constant time.
func (s *Service) Authorize(secret string) error {
	if s.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Secret)) != 1 {
		return store.ErrUnauthorized
	}
	return nil
}

type PullInput struct {
	Secret   string
	Consumer string
	Cursor   int64
	Limit    int
}

type PullResult struct {
	Events []domain.ChangeEvent
	Cursor int64
}

// Pull returns events from the presented cursor. Presenting a cursor
// acknowledges everything below it, which lets retention drop events no
// consumer still needs.
func (s *Service) Pull(ctx context.Context, in PullInput) (PullResult, error) {
	if err := s.Authorize(in.Secret); err != nil {
		return PullResult{}, err
	}
	consumer := strings.TrimSpace(in.Consumer)
	if consumer == "" {
		consumer = s.cfg.DefaultConsumer
	}
	cursor := in.Cursor
	if cursor < 0 {
		cursor = 0
	}
	limit := s.normalizeLimit(in.Limit)

	ctx, span := tracer.Start(ctx, "replication.Pull", trace.WithAttributes(
		attribute.String("consumer", consumer),
		attribute.Int64("cursor", cursor),
		attribute.Int("limit", limit),
	))
	defer span.End()

	events, next, err := s.bookings.Changes(cursor, limit)
	if err != nil {
		return PullResult{}, fmt.Errorf("read changes from %d: %w", cursor, err)
	}

	s.retain(ctx, consumer, cursor)
	return PullResult{Events: events, Cursor: next}, nil
}

func (s *Service) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// retain records the consumer's cursor and compacts the log below the
// slowest known consumer. Failures only delay compaction.
func (s *Service) retain(ctx context.Context, consumer string, cursor int64) {
	if s.cursors == nil {
		return
	}
	if err := s.cursors.Ack(ctx, consumer, cursor); err != nil {
		s.log.Warn("cursor ack failed", slog.Any("err", err), slog.String("consumer", consumer))
		return
	}
	cursors, err := s.cursors.Cursors(ctx)
	if err != nil {
		s.log.Warn("cursor listing failed", slog.Any("err", err))
		return
	}
	floor, ok := minCursor(cursors)
	if !ok || floor <= 0 {
		return
	}
	n, err := s.bookings.Compact(ctx, floor)
	if err != nil {
		s.log.Warn("change log compaction failed", slog.Any("err", err), slog.Int64("floor", floor))
		return
	}
	if n > 0 {
		s.log.Debug("change log compacted", slog.Int("evicted", n), slog.Int64("floor", floor))
	}
}

func minCursor(cursors map[string]int64) (int64, bool) {
	var (
		floor int64
		found bool
	)
	for _, c := range cursors {
		if !found || c < floor {
			floor = c
			found = true
		}
	}
	return floor, found
}

// Push applies a batch of peer events in order and returns how many took
// effect. The whole batch is checked first so a malformed event rejects it
// before anything is applied.
func (s *Service) Push(ctx context.Context, secret string, events []domain.ChangeEvent) (int, error) {
	if err := s.Authorize(secret); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "replication.Push", trace.WithAttributes(attribute.Int("events", len(events))))
	defer span.End()

	for i, ev := range events {
		if err := bookings.CheckExternal(ev); err != nil {
			return 0, fmt.Errorf("event %d: %w", i, err)
		}
	}

	applied := 0
	for i, ev := range events {
		ok, err := s.bookings.ApplyExternal(ctx, ev)
		if err != nil {
			return applied, fmt.Errorf("apply event %d: %w", i, err)
		}
		if ok {
			applied++
		}
	}

	s.log.Info("push applied", slog.Int("received", len(events)), slog.Int("applied", applied))
	return applied, nil
}
