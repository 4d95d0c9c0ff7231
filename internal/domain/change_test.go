package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestChangeEventJSON_Upsert(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	ev := UpsertEvent(Booking{
		ID:        "b1",
		Name:      "Ana",
		Phone:     "912345678",
		Service:   "corte",
		Barber:    "Pedro",
		Date:      "2026-02-14",
		Start:     840,
		Duration:  30,
		Status:    StatusBooked,
		CreatedAt: created,
		UpdatedAt: created,
	})
	ev.Seq = 7
	ev.At = created

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	for _, want := range []string{`"seq":7`, `"op":"upsert"`, `"time":"14:00"`, `"barber":"Pedro"`, `"ts":`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("json %s missing %s", raw, want)
		}
	}

	var got ChangeEvent
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Seq != 7 || got.Op != OpUpsert || got.BookingID != "b1" {
		t.Fatalf("decoded = %+v", got)
	}
	if got.Booking == nil || !got.Booking.SameRecord(*ev.Booking) {
		t.Fatalf("payload mismatch: %+v", got.Booking)
	}
}

func TestChangeEventJSON_DeletePushShape(t *testing.T) {
	var got ChangeEvent
	if err := json.Unmarshal([]byte(`{"op":"delete","payload":{"id":"X"}}`), &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Op != OpDelete || got.BookingID != "X" || got.Booking != nil {
		t.Fatalf("decoded = %+v", got)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(raw), `"payload":{"id":"X"}`) {
		t.Fatalf("json = %s", raw)
	}
}

func TestChangeEventJSON_RejectsUnknownOp(t *testing.T) {
	var got ChangeEvent
	if err := json.Unmarshal([]byte(`{"op":"merge","payload":{}}`), &got); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBookingOverlaps(t *testing.T) {
	b := Booking{Start: 840, Duration: 30}
	if !b.Overlaps(855, 885) {
		t.Fatalf("14:15-14:45 should overlap 14:00-14:30")
	}
	if b.Overlaps(870, 900) {
		t.Fatalf("back-to-back must not overlap")
	}
	if b.Overlaps(810, 840) {
		t.Fatalf("slot ending at start must not overlap")
	}
	if !b.Overlaps(800, 900) {
		t.Fatalf("enclosing interval should overlap")
	}
}
