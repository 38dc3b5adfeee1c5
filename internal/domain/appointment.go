package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AppointmentID is opaque; the appointment store assigns it.
type AppointmentID string

type AppointmentKind string

const (
	KindPodiatry AppointmentKind = "podologia"
	KindManicure AppointmentKind = "manicura"
)

type Appointment struct {
	bun.BaseModel `bun:"table:citas"`

	ID            AppointmentID   `bun:"id,pk,type:uuid"`
	Date          string          `bun:"fecha,notnull"`
	Time          string          `bun:"hora,notnull"`
	Extended      bool            `bun:"duracion_extendida,notnull"`
	PatientID     string          `bun:"paciente_rut,notnull"`
	PatientName   string          `bun:"-"`
	TreatmentKind string          `bun:"tipo_tratamiento,notnull"`
	Kind          AppointmentKind `bun:"tipo_cita,notnull"`
	Status        Status          `bun:"estado,notnull"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = AppointmentID(id.String())
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Day and StartSlot normalize the raw stored values.
func (a Appointment) Day() (Date, error) {
	return ParseDate(a.Date)
}

func (a Appointment) StartSlot() (TimeSlot, error) {
	return ParseTimeSlot(a.Time)
}

// BookingRequest is a candidate appointment. ExcludeAppointmentID is set
// when the request edits an existing appointment so that the appointment's
// current slots do not count against itself.
type BookingRequest struct {
	Date                 string
	Time                 string
	Extended             bool
	PatientID            string
	TreatmentKind        string
	Kind                 AppointmentKind
	Status               Status
	ExcludeAppointmentID AppointmentID
}

func (r BookingRequest) IsEdit() bool {
	return r.ExcludeAppointmentID != ""
}

// Appointment converts an accepted request into an appointment with the given id.
func (r BookingRequest) Appointment(id AppointmentID) Appointment {
	status := r.Status
	if status == "" {
		status = StatusReserved
	}
	kind := r.Kind
	if kind == "" {
		kind = KindPodiatry
	}
	return Appointment{
		ID:            id,
		Date:          r.Date,
		Time:          r.Time,
		Extended:      r.Extended,
		PatientID:     r.PatientID,
		TreatmentKind: r.TreatmentKind,
		Kind:          kind,
		Status:        status,
	}
}
