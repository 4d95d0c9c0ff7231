package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type ChangeOp string

const (
	OpUpsert ChangeOp = "upsert"
	OpDelete ChangeOp = "delete"
)

func (op ChangeOp) Valid() bool {
	return op == OpUpsert || op == OpDelete
}

// ChangeEvent is one immutable entry of the change log. Seq is the log
// position. Upserts carry the full booking record; deletes carry only the id.
type ChangeEvent struct {
	bun.BaseModel `bun:"table:change_events"`

	Seq       int64     `bun:"seq,pk"`
	Op        ChangeOp  `bun:"op,notnull"`
	BookingID string    `bun:"booking_id,notnull"`
	Booking   *Booking  `bun:"payload,type:jsonb"`
	At        time.Time `bun:"created_at,notnull"`
}

func UpsertEvent(b Booking) ChangeEvent {
	return ChangeEvent{Op: OpUpsert, BookingID: b.ID, Booking: &b}
}

func DeleteEvent(id string) ChangeEvent {
	return ChangeEvent{Op: OpDelete, BookingID: id}
}

type deletePayload struct {
	ID string `json:"id"`
}

type changeEventJSON struct {
	Seq     *int64          `json:"seq,omitempty"`
	Op      ChangeOp        `json:"op"`
	Payload json.RawMessage `json:"payload"`
	At      *time.Time      `json:"ts,omitempty"`
}

func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Op {
	case OpUpsert:
		if e.Booking == nil {
			return nil, errors.New("upsert event without booking payload")
		}
		payload = e.Booking
	case OpDelete:
		payload = deletePayload{ID: e.BookingID}
	default:
		return nil, fmt.Errorf("unknown change op %q", e.Op)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	seq := e.Seq
	at := e.At
	out := changeEventJSON{Seq: &seq, Op: e.Op, Payload: raw}
	if !at.IsZero() {
		out.At = &at
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the pull wire shape and the push shape, where seq and
// ts are usually absent.
func (e *ChangeEvent) UnmarshalJSON(data []byte) error {
	var in changeEventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := ChangeEvent{Op: in.Op}
	if in.Seq != nil {
		out.Seq = *in.Seq
	}
	if in.At != nil {
		out.At = *in.At
	}
	switch in.Op {
	case OpUpsert:
		var b Booking
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &b); err != nil {
				return fmt.Errorf("upsert payload: %w", err)
			}
		}
		out.Booking = &b
		out.BookingID = b.ID
	case OpDelete:
		var p deletePayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				return fmt.Errorf("delete payload: %w", err)
			}
		}
		out.BookingID = p.ID
	default:
		return fmt.Errorf("unknown change op %q", in.Op)
	}
	*e = out
	return nil
}
