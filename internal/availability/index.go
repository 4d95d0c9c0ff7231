// Package availability keeps the occupied intervals of every (date, barber)
// calendar and answers overlap and free-slot queries against them.
package availability

import (
	"sort"

	"barbearia/backend/internal/domain"
)

// Key scopes conflicts: bookings only compete within the same day and barber.
type Key struct {
	Date   string
	Barber string
}

func KeyOf(b domain.Booking) Key {
	return Key{Date: b.Date, Barber: b.Barber}
}

// Index is not safe for concurrent use; the owner serializes access.
type Index struct {
	byKey map[Key]map[string]domain.Booking
	keyOf map[string]Key
}

func NewIndex() *Index {
	return &Index{
		byKey: make(map[Key]map[string]domain.Booking),
		keyOf: make(map[string]Key),
	}
}

// Put replaces any previous version of the booking. Cancelled bookings are
// dropped from the index since they no longer occupy time.
func (x *Index) Put(b domain.Booking) {
	x.Remove(b.ID)
	if !b.Active() {
		return
	}
	k := KeyOf(b)
	day, ok := x.byKey[k]
	if !ok {
		day = make(map[string]domain.Booking)
		x.byKey[k] = day
	}
	day[b.ID] = b
	x.keyOf[b.ID] = k
}

func (x *Index) Remove(id string) {
	k, ok := x.keyOf[id]
	if !ok {
		return
	}
	delete(x.keyOf, id)
	day := x.byKey[k]
	delete(day, id)
	if len(day) == 0 {
		delete(x.byKey, k)
	}
}

// Len counts active bookings.
func (x *Index) Len() int { return len(x.keyOf) }

// Busy returns the active bookings of a day ordered by start time.
func (x *Index) Busy(date, barber string) []domain.Booking {
	day := x.byKey[Key{Date: date, Barber: barber}]
	out := make([]domain.Booking, 0, len(day))
	for _, b := range day {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conflict returns the earliest active booking whose interval overlaps
// [start, start+duration) on the same day and barber. excludeID lets an edit
// ignore its own stored version.
func (x *Index) Conflict(date, barber string, start, duration int, excludeID string) (domain.Booking, bool) {
	end := start + duration
	for _, b := range x.Busy(date, barber) {
		if b.ID == excludeID {
			continue
		}
		if b.Overlaps(start, end) {
			return b, true
		}
	}
	return domain.Booking{}, false
}

// FreeSlots enumerates every start t = open, open+step, ... with
// t+duration <= close that has no conflict.
func (x *Index) FreeSlots(date, barber string, duration, open, close, step int) []domain.Clock {
	if duration <= 0 || step <= 0 {
		return nil
	}
	busy := x.Busy(date, barber)
	out := make([]domain.Clock, 0)
	for t := open; t+duration <= close; t += step {
		free := true
		for _, b := range busy {
			if b.Overlaps(t, t+duration) {
				free = false
				break
			}
		}
		if free {
			out = append(out, domain.Clock(t))
		}
	}
	return out
}
