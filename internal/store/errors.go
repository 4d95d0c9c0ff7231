package store

import "errors"

var (
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSequenceConflict = errors.New("change sequence already written")
)
