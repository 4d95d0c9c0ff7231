package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/store"
)

// bookingColumns are overwritten when an upsert hits an existing id.
var bookingColumns = []string{
	"name", "phone", "email", "service", "barber", "date",
	"start_min", "duration", "notes", "status", "created_at", "updated_at",
}

// Journal keeps the booking rows and the retained change log in Postgres.
type Journal struct {
	db *bun.DB
}

func NewJournal(db *bun.DB) *Journal {
	return &Journal{db: db}
}

// Record applies ev to the bookings table and appends it to change_events
// in one transaction.
func (j *Journal) Record(ctx context.Context, ev domain.ChangeEvent) error {
	return j.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		switch ev.Op {
		case domain.OpUpsert:
			if ev.Booking == nil {
				return fmt.Errorf("upsert %d has no payload", ev.Seq)
			}
			if err := lockCalendar(ctx, tx, ev.Booking.Barber, ev.Booking.Date); err != nil {
				return err
			}
			if err := upsertBooking(ctx, tx, *ev.Booking); err != nil {
				return err
			}
		case domain.OpDelete:
			if err := deleteBooking(ctx, tx, ev.BookingID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown op %q", ev.Op)
		}
		return insertEvent(ctx, tx, ev)
	})
}

// lockCalendar serializes writers touching one barber's day across
// processes sharing the database.
func lockCalendar(ctx context.Context, tx bun.Tx, barber, date string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", calendarKey(barber, date)).Exec(ctx)
	return err
}

func calendarKey(barber, date string) string {
	return barber + "|" + date
}

// deleteBooking takes the same calendar lock as an upsert of the row it
// removes. A missing row is not an error; the event is still journaled.
func deleteBooking(ctx context.Context, tx bun.Tx, id string) error {
	var cal struct {
		Barber string `bun:"barber"`
		Date   string `bun:"date"`
	}
	err := tx.NewSelect().
		Model((*domain.Booking)(nil)).
		Column("barber", "date").
		Where("id = ?", id).
		Scan(ctx, &cal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find booking %s: %w", id, err)
	}
	if err := lockCalendar(ctx, tx, cal.Barber, cal.Date); err != nil {
		return err
	}
	_, err = tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func upsertBooking(ctx context.Context, tx bun.Tx, b domain.Booking) error {
	q := tx.NewInsert().Model(&b).On("CONFLICT (id) DO UPDATE")
	for _, col := range bookingColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}
	_, err := q.Exec(ctx)
	return err
}

func insertEvent(ctx context.Context, tx bun.Tx, ev domain.ChangeEvent) error {
	_, err := tx.NewInsert().Model(&ev).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: seq %d", store.ErrSequenceConflict, ev.Seq)
		}
		return err
	}
	return nil
}

func (j *Journal) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := j.db.NewSelect().
		Model(&snap.Bookings).
		OrderExpr("date ASC, barber ASC, start_min ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load bookings: %w", err)
	}
	err = j.db.NewSelect().
		Model(&snap.Events).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load change events: %w", err)
	}
	return snap, nil
}

// Trim deletes change events with seq below before.
func (j *Journal) Trim(ctx context.Context, before int64) error {
	_, err := j.db.NewDelete().
		Model((*domain.ChangeEvent)(nil)).
		Where("seq < ?", before).
		Exec(ctx)
	return err
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}
