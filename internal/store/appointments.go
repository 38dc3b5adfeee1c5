package store

import (
	"context"

	"podoclinic/backend/internal/domain"
)

// AppointmentStore is the system of record for appointments. Implementations
// own the authoritative conflict check at write time; anything done before
// calling Create or Update is only a pre-check.
type AppointmentStore interface {
	ListByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
	// ListAll returns every appointment unfiltered. It backs the debug
	// listing and is used when ListByDate is unavailable.
	ListAll(ctx context.Context) ([]domain.Appointment, error)
	Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error)
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	SetStatus(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error)
}

// SlotSuggester is implemented by stores that compute their own list of free
// slots. The list is only a seed; callers cross-check it.
type SlotSuggester interface {
	SuggestedSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error)
}

type ClinicDirectory interface {
	Patient(ctx context.Context, rut string) (domain.Patient, error)
}

// DayTx is a transaction scoped to a single day's schedule. Writers for the
// same day are serialized while it is open.
type DayTx interface {
	ListAppointments(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
