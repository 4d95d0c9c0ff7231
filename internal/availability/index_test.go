package availability

import (
	"fmt"
	"testing"

	"barbearia/backend/internal/domain"
)

func booking(id, barber string, start, dur int) domain.Booking {
	return domain.Booking{
		ID:       id,
		Barber:   barber,
		Date:     "2026-02-14",
		Start:    domain.Clock(start),
		Duration: dur,
		Status:   domain.StatusBooked,
	}
}

func TestConflict_HalfOpenIntervals(t *testing.T) {
	x := NewIndex()
	x.Put(booking("a", "Pedro", 840, 30))

	tests := []struct {
		name  string
		start int
		dur   int
		want  bool
	}{
		{name: "same slot", start: 840, dur: 30, want: true},
		{name: "starts inside", start: 855, dur: 30, want: true},
		{name: "ends inside", start: 825, dur: 30, want: true},
		{name: "encloses", start: 830, dur: 60, want: true},
		{name: "back to back after", start: 870, dur: 30, want: false},
		{name: "back to back before", start: 810, dur: 30, want: false},
		{name: "far away", start: 600, dur: 30, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := x.Conflict("2026-02-14", "Pedro", tt.start, tt.dur, "")
			if ok != tt.want {
				t.Fatalf("conflict = %v, want %v", ok, tt.want)
			}
			if ok && got.ID != "a" {
				t.Fatalf("conflicting id = %q, want a", got.ID)
			}
		})
	}
}

func TestConflict_ScopedByBarberDateAndStatus(t *testing.T) {
	x := NewIndex()
	x.Put(booking("a", "Pedro", 840, 30))

	if _, ok := x.Conflict("2026-02-14", "Joao", 840, 30, ""); ok {
		t.Fatalf("other barber must not conflict")
	}
	if _, ok := x.Conflict("2026-02-15", "Pedro", 840, 30, ""); ok {
		t.Fatalf("other date must not conflict")
	}
	if _, ok := x.Conflict("2026-02-14", "Pedro", 840, 30, "a"); ok {
		t.Fatalf("excluded id must not conflict with itself")
	}

	cancelled := booking("a", "Pedro", 840, 30)
	cancelled.Status = domain.StatusCancelled
	x.Put(cancelled)
	if _, ok := x.Conflict("2026-02-14", "Pedro", 840, 30, ""); ok {
		t.Fatalf("cancelled booking must not conflict")
	}
	if x.Len() != 0 {
		t.Fatalf("Len = %d, want 0", x.Len())
	}
}

func TestPut_ReplacesPreviousVersionAcrossKeys(t *testing.T) {
	x := NewIndex()
	x.Put(booking("a", "Pedro", 840, 30))

	moved := booking("a", "Joao", 600, 30)
	x.Put(moved)

	if _, ok := x.Conflict("2026-02-14", "Pedro", 840, 30, ""); ok {
		t.Fatalf("old interval still indexed")
	}
	if _, ok := x.Conflict("2026-02-14", "Joao", 600, 30, ""); !ok {
		t.Fatalf("new interval not indexed")
	}
	x.Remove("a")
	x.Remove("a")
	if x.Len() != 0 {
		t.Fatalf("Len = %d, want 0", x.Len())
	}
}

func TestFreeSlots_ExcludesOverlapsAndMatchesConflict(t *testing.T) {
	x := NewIndex()
	x.Put(booking("a", "Pedro", 840, 30))
	x.Put(booking("b", "Pedro", 1000, 45))

	open, close, step, dur := 540, 1200, 5, 30
	slots := x.FreeSlots("2026-02-14", "Pedro", dur, open, close, step)

	free := make(map[int]bool, len(slots))
	prev := -1
	for _, s := range slots {
		if s.Minutes() <= prev {
			t.Fatalf("slots not strictly ascending at %s", s)
		}
		prev = s.Minutes()
		free[s.Minutes()] = true
	}

	for t0 := open; t0+dur <= close; t0 += step {
		_, conflict := x.Conflict("2026-02-14", "Pedro", t0, dur, "")
		if conflict == free[t0] {
			t.Fatalf("slot %s: conflict=%v free=%v", domain.Clock(t0), conflict, free[t0])
		}
	}

	for t0 := 815; t0 < 870; t0 += step {
		if free[t0] {
			t.Fatalf("slot %s overlaps 14:00-14:30 but reported free", domain.Clock(t0))
		}
	}
	if !free[810] || !free[870] {
		t.Fatalf("13:30 and 14:30 must be free")
	}
	if slots[len(slots)-1].String() != "19:30" {
		t.Fatalf("last slot = %s, want 19:30", slots[len(slots)-1])
	}
}

func TestFreeSlots_DegenerateInputs(t *testing.T) {
	x := NewIndex()
	if got := x.FreeSlots("2026-02-14", "Pedro", 0, 540, 1200, 5); got != nil {
		t.Fatalf("zero duration = %v, want nil", got)
	}
	if got := x.FreeSlots("2026-02-14", "Pedro", 30, 540, 1200, 0); got != nil {
		t.Fatalf("zero step = %v, want nil", got)
	}
	if got := x.FreeSlots("2026-02-14", "Pedro", 120, 540, 600, 5); len(got) != 0 {
		t.Fatalf("duration longer than day = %v, want empty", got)
	}
}

func TestBusy_Ordered(t *testing.T) {
	x := NewIndex()
	for i, start := range []int{900, 600, 750} {
		x.Put(booking(fmt.Sprintf("id%d", i), "Pedro", start, 15))
	}
	got := x.Busy("2026-02-14", "Pedro")
	if len(got) != 3 || got[0].Start != 600 || got[1].Start != 750 || got[2].Start != 900 {
		t.Fatalf("busy = %+v", got)
	}
}
