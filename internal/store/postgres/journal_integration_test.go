package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/store"
)

func TestPostgresIntegration_JournalRecordLoadTrim(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("BARBEARIA_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("BARBEARIA_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "barbearia_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	// A single pooled connection keeps the session search_path for every query.
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("applyMigrations: %v", err)
	}

	j := NewJournal(db)
	now := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	b := domain.Booking{
		ID: "b1", Name: "Ana", Phone: "1", Service: "corte", Barber: "Joao",
		Date: "2024-12-02", Start: 14 * 60, Duration: 30, Status: domain.StatusBooked,
		CreatedAt: now, UpdatedAt: now,
	}

	record := func(seq int64, ev domain.ChangeEvent) error {
		ev.Seq = seq
		ev.At = now
		return j.Record(ctx, ev)
	}

	if err := record(0, domain.UpsertEvent(b)); err != nil {
		t.Fatalf("Record upsert: %v", err)
	}
	moved := b
	moved.Start = 15 * 60
	if err := record(1, domain.UpsertEvent(moved)); err != nil {
		t.Fatalf("Record second upsert: %v", err)
	}
	other := b
	other.ID = "b2"
	if err := record(2, domain.UpsertEvent(other)); err != nil {
		t.Fatalf("Record third upsert: %v", err)
	}
	if err := record(3, domain.DeleteEvent("b2")); err != nil {
		t.Fatalf("Record delete: %v", err)
	}

	if err := record(3, domain.DeleteEvent("b1")); !errors.Is(err, store.ErrSequenceConflict) {
		t.Fatalf("duplicate seq err = %v, want %v", err, store.ErrSequenceConflict)
	}

	snap, err := j.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Bookings) != 1 || snap.Bookings[0].ID != "b1" || snap.Bookings[0].Start != 15*60 {
		t.Fatalf("bookings = %+v", snap.Bookings)
	}
	if len(snap.Events) != 4 {
		t.Fatalf("events = %d, want 4", len(snap.Events))
	}
	if ev := snap.Events[1]; ev.Op != domain.OpUpsert || ev.Booking == nil || ev.Booking.Start != 15*60 {
		t.Fatalf("event 1 = %+v", ev)
	}
	if ev := snap.Events[3]; ev.Op != domain.OpDelete || ev.BookingID != "b2" {
		t.Fatalf("event 3 = %+v", ev)
	}

	if err := j.Trim(ctx, 3); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	snap, err = j.Load(ctx)
	if err != nil {
		t.Fatalf("Load after trim: %v", err)
	}
	if len(snap.Events) != 1 || snap.Events[0].Seq != 3 {
		t.Fatalf("events after trim = %+v", snap.Events)
	}

	if err := record(4, domain.DeleteEvent("missing")); err != nil {
		t.Fatalf("Record delete of unknown id: %v", err)
	}
	snap, err = j.Load(ctx)
	if err != nil {
		t.Fatalf("Load after unknown delete: %v", err)
	}
	if len(snap.Bookings) != 1 || len(snap.Events) != 2 || snap.Events[1].BookingID != "missing" {
		t.Fatalf("after unknown delete = %d bookings, events %+v", len(snap.Bookings), snap.Events)
	}
	if err := record(5, domain.DeleteEvent("b1")); err != nil {
		t.Fatalf("Record delete b1: %v", err)
	}
	snap, err = j.Load(ctx)
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if len(snap.Bookings) != 0 {
		t.Fatalf("bookings after delete = %+v", snap.Bookings)
	}

	if err := j.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	const upMarker, downMarker = "-- +goose Up", "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	if downIdx := strings.Index(afterUp, downMarker); downIdx >= 0 {
		afterUp = afterUp[:downIdx]
	}
	return strings.TrimSpace(afterUp), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
