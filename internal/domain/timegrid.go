package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

// Clock is a naive minute-of-day offset. It travels as "HH:MM" on the wire
// and as an integer column in storage.
type Clock int

// InvalidClock is returned alongside ok=false by ParseTime.
const InvalidClock Clock = -1

// ParseTime accepts exactly "HH:MM" with 00<=HH<=23 and 00<=MM<=59.
func ParseTime(s string) (Clock, bool) {
	if len(s) != 5 || s[2] != ':' {
		return InvalidClock, false
	}
	h, ok := twoDigits(s[0], s[1])
	if !ok || h > 23 {
		return InvalidClock, false
	}
	m, ok := twoDigits(s[3], s[4])
	if !ok || m > 59 {
		return InvalidClock, false
	}
	return Clock(h*60 + m), true
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, bool) {
	if len(s) != len(DateLayout) {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Quantized reports whether minutes sits on the step grid.
func Quantized(minutes, step int) bool {
	if step <= 0 {
		return false
	}
	return minutes%step == 0
}

// WithinHours reports whether [minutes, minutes+duration) fits in [open, close].
func WithinHours(minutes, duration, open, close int) bool {
	return minutes >= open && minutes+duration <= close
}

func (c Clock) Minutes() int { return int(c) }

func (c Clock) Valid() bool { return c >= 0 && c < MinutesPerDay }

func (c Clock) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("clock out of range: %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, ok := ParseTime(string(b))
	if !ok {
		return fmt.Errorf("invalid time %q, want HH:MM", string(b))
	}
	*c = v
	return nil
}

func (c Clock) Value() (driver.Value, error) {
	return int64(c), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*c = Clock(v)
	case int32:
		*c = Clock(v)
	case int:
		*c = Clock(v)
	case nil:
		*c = 0
	default:
		return fmt.Errorf("clock: unsupported scan type %T", src)
	}
	return nil
}
