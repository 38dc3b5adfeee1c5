package store

import (
	"errors"
	"fmt"
	"strings"

	"podoclinic/backend/internal/domain"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// SlotConflictError is returned when the write-time check finds the slot
// taken. It matches ErrConflict with errors.Is.
type SlotConflictError struct {
	Reason        string
	ConflictsWith []domain.AppointmentID
}

func (e *SlotConflictError) Error() string {
	if len(e.ConflictsWith) == 0 {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	ids := make([]string, 0, len(e.ConflictsWith))
	for _, id := range e.ConflictsWith {
		ids = append(ids, string(id))
	}
	return fmt.Sprintf("conflict: %s with %s", e.Reason, strings.Join(ids, ","))
}

func (e *SlotConflictError) Unwrap() error {
	return ErrConflict
}
