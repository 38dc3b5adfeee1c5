package domain

import (
	"fmt"
	"strings"
)

// Status values match the strings stored by the appointment store.
type Status string

const (
	StatusReserved  Status = "reservada"
	StatusConfirmed Status = "confirmada"
	StatusCompleted Status = "completada"
	StatusCancelled Status = "cancelada"
)

var statusAliases = map[string]Status{
	"reservada":  StatusReserved,
	"reserved":   StatusReserved,
	"confirmada": StatusConfirmed,
	"confirmed":  StatusConfirmed,
	"completada": StatusCompleted,
	"completed":  StatusCompleted,
	"cancelada":  StatusCancelled,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
}

// ParseStatus maps a stored or user supplied status to a Status. An empty
// value is the store default, reservada.
func ParseStatus(raw string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusReserved, nil
	}
	st, ok := statusAliases[s]
	if !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return st, nil
}

// Occupies reports whether an appointment in this status blocks its slots.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes reservada -> confirmada -> completada and
// reservada|confirmada -> cancelada. Re-applying the current status is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusReserved:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}
