package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Service ties the appointment store to the availability engine. The engine
// check it runs before a write is a pre-check; the store has the final say.
type Service struct {
	store     store.AppointmentStore
	directory store.ClinicDirectory
	engine    *availability.Engine
	log       *slog.Logger
}

// NewService builds a Service. directory may be nil, in which case patient
// identifiers are passed through unchecked beyond their RUT format.
func NewService(st store.AppointmentStore, directory store.ClinicDirectory, engine *availability.Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     st,
		directory: directory,
		engine:    engine,
		log:       log.With(slog.String("component", "appointments")),
	}
}

type BookingInput struct {
	Date            string
	Time            string
	Extended        bool
	DurationMinutes int
	PatientRUT      string
	TreatmentKind   string
	Kind            string
	Status          string
	IdempotencyKey  string

	// ExcludeAppointmentID makes Check preview an edit of that appointment.
	// Book ignores it and Reschedule uses its own id.
	ExcludeAppointmentID domain.AppointmentID
}

// BookingResult carries the outcome of Book and Reschedule. A rejected
// booking is a result, not an error. Stale is set when the pre-check passed
// but the store refused the write because the day changed underneath it.
type BookingResult struct {
	Accepted    bool
	Appointment domain.Appointment
	Validation  availability.ValidationResult
	Stale       bool
}

// Check runs the engine pre-check without writing. With
// in.ExcludeAppointmentID set, the named appointment's own slots do not count
// against the request.
func (s *Service) Check(ctx context.Context, in BookingInput) (availability.ValidationResult, error) {
	req, date, err := s.bookingRequest(in)
	if err != nil {
		return availability.ValidationResult{}, err
	}
	req.ExcludeAppointmentID = domain.AppointmentID(strings.TrimSpace(string(in.ExcludeAppointmentID)))
	snap, err := s.snapshot(ctx, date)
	if err != nil {
		return availability.ValidationResult{}, err
	}
	occ := s.engine.ResolveOccupancy(snap.appointments, date, req.ExcludeAppointmentID)
	return s.engine.Validate(req, occ), nil
}

func (s *Service) Book(ctx context.Context, in BookingInput) (BookingResult, error) {
	req, date, err := s.bookingRequest(in)
	if err != nil {
		return BookingResult{}, err
	}
	if err := s.resolvePatient(ctx, &req); err != nil {
		return BookingResult{}, err
	}

	var id domain.AppointmentID
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return BookingResult{}, validationError("idempotency_key too long")
		}
		id = domain.AppointmentID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("podoclinic:create_appointment:"+key)).String())
	}

	snap, err := s.snapshot(ctx, date)
	if err != nil {
		return BookingResult{}, err
	}
	occ := s.engine.ResolveOccupancy(snap.appointments, date, "")
	res := s.engine.Validate(req, occ)
	if !res.Accepted {
		if id != "" && occupiedBySelf(res, id) {
			// A replayed create finds its own booking; let the store settle it.
			res.Accepted = true
		} else {
			return BookingResult{Validation: res}, nil
		}
	}

	created, err := s.store.Create(ctx, res.Request.Appointment(id))
	if err != nil {
		return s.writeRejected(ctx, res, err)
	}
	s.log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", string(created.ID)),
		slog.String("fecha", res.Request.Date),
		slog.String("hora", res.Request.Time),
		slog.Bool("extended", res.Request.Extended),
	)
	return BookingResult{Accepted: true, Appointment: created, Validation: res}, nil
}

// Reschedule edits an existing appointment. Fields left empty in the input
// keep their current values.
func (s *Service) Reschedule(ctx context.Context, id domain.AppointmentID, in BookingInput) (BookingResult, error) {
	if strings.TrimSpace(string(id)) == "" {
		return BookingResult{}, validationError("appointment_id is required")
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return BookingResult{}, err
	}
	currentStatus, err := domain.ParseStatus(string(current.Status))
	if err != nil {
		return BookingResult{}, err
	}
	if currentStatus.Terminal() {
		return BookingResult{}, fmt.Errorf("%w: appointment is %s", store.ErrInvalidTransition, currentStatus)
	}

	merged := mergeInput(current, in)
	req, date, err := s.bookingRequest(merged)
	if err != nil {
		return BookingResult{}, err
	}
	if !currentStatus.CanTransitionTo(req.Status) {
		return BookingResult{}, fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, currentStatus, req.Status)
	}
	if req.PatientID != current.PatientID {
		if err := s.resolvePatient(ctx, &req); err != nil {
			return BookingResult{}, err
		}
	}
	req.ExcludeAppointmentID = id

	snap, err := s.snapshot(ctx, date)
	if err != nil {
		return BookingResult{}, err
	}
	occ := s.engine.ResolveOccupancy(snap.appointments, date, id)
	res := s.engine.Validate(req, occ)
	if !res.Accepted {
		return BookingResult{Validation: res}, nil
	}

	appt := res.Request.Appointment(id)
	appt.CreatedAt = current.CreatedAt
	updated, err := s.store.Update(ctx, appt)
	if err != nil {
		return s.writeRejected(ctx, res, err)
	}
	s.log.InfoContext(ctx, "appointment rescheduled",
		slog.String("appointment_id", string(id)),
		slog.String("fecha", res.Request.Date),
		slog.String("hora", res.Request.Time),
	)
	return BookingResult{Accepted: true, Appointment: updated, Validation: res}, nil
}

func (s *Service) SetStatus(ctx context.Context, id domain.AppointmentID, rawStatus string) (domain.Appointment, error) {
	if strings.TrimSpace(string(id)) == "" {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if strings.TrimSpace(rawStatus) == "" {
		return domain.Appointment{}, validationError("estado is required")
	}
	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return domain.Appointment{}, validationError("invalid estado")
	}
	return s.store.SetStatus(ctx, id, status)
}

// List returns the appointments on rawDate, or every appointment when
// rawDate is empty.
func (s *Service) List(ctx context.Context, rawDate string) ([]domain.Appointment, error) {
	if strings.TrimSpace(rawDate) == "" {
		return s.store.ListAll(ctx)
	}
	date, err := domain.ParseDate(rawDate)
	if err != nil {
		return nil, validationError("invalid fecha")
	}
	snap, err := s.snapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	if snap.source == SourceDate {
		return snap.appointments, nil
	}
	out := make([]domain.Appointment, 0, len(snap.appointments))
	for _, a := range snap.appointments {
		if d, err := a.Day(); err == nil && d == date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) bookingRequest(in BookingInput) (domain.BookingRequest, domain.Date, error) {
	if strings.TrimSpace(in.Date) == "" {
		return domain.BookingRequest{}, "", validationError("fecha is required")
	}
	date, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.BookingRequest{}, "", validationError("invalid fecha")
	}
	if strings.TrimSpace(in.Time) == "" {
		return domain.BookingRequest{}, "", validationError("hora is required")
	}

	extended := in.Extended
	switch in.DurationMinutes {
	case 0:
	case 60:
		if extended {
			return domain.BookingRequest{}, "", validationError("duracion_cita contradicts duracion_extendida")
		}
	case 120:
		extended = true
	default:
		return domain.BookingRequest{}, "", validationError("duracion_cita must be 60 or 120")
	}

	kind := domain.AppointmentKind(strings.ToLower(strings.TrimSpace(in.Kind)))
	switch kind {
	case "":
		kind = domain.KindPodiatry
	case domain.KindPodiatry, domain.KindManicure:
	default:
		return domain.BookingRequest{}, "", validationError("invalid tipo_cita")
	}

	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return domain.BookingRequest{}, "", validationError("invalid estado")
	}

	treatment := strings.TrimSpace(in.TreatmentKind)
	if treatment == "" {
		treatment = "general"
	}

	return domain.BookingRequest{
		Date:          in.Date,
		Time:          in.Time,
		Extended:      extended,
		PatientID:     strings.TrimSpace(in.PatientRUT),
		TreatmentKind: treatment,
		Kind:          kind,
		Status:        status,
	}, date, nil
}

// resolvePatient checks the RUT and replaces it with the directory's key
// for the patient.
func (s *Service) resolvePatient(ctx context.Context, req *domain.BookingRequest) error {
	if req.PatientID == "" {
		return validationError("paciente_rut is required")
	}
	if !domain.ValidRUT(req.PatientID) {
		return validationError("invalid paciente_rut")
	}
	if s.directory == nil {
		return nil
	}
	p, err := s.directory.Patient(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationError("unknown paciente_rut")
		}
		return fmt.Errorf("patient lookup: %w", err)
	}
	if p.RUT != "" {
		req.PatientID = p.RUT
	}
	return nil
}

// writeRejected turns a store conflict into a stale rejection with fresh
// alternatives. Other errors pass through.
func (s *Service) writeRejected(ctx context.Context, pre availability.ValidationResult, err error) (BookingResult, error) {
	if !errors.Is(err, store.ErrConflict) {
		return BookingResult{}, err
	}

	res := pre
	res.Accepted = false
	res.Reason = availability.SlotOccupied
	res.ConflictsWith = nil
	res.Alternatives = nil
	var sc *store.SlotConflictError
	if errors.As(err, &sc) {
		if sc.Reason != "" {
			res.Reason = availability.Reason(sc.Reason)
		}
		res.ConflictsWith = sc.ConflictsWith
	}

	s.log.WarnContext(ctx, "store rejected booking after pre-check",
		slog.String("fecha", pre.Request.Date),
		slog.String("hora", pre.Request.Time),
		slog.String("reason", string(res.Reason)),
	)

	date := domain.Date(pre.Request.Date)
	if snap, err := s.snapshot(ctx, date); err == nil {
		occ := s.engine.ResolveOccupancy(snap.appointments, date, pre.Request.ExcludeAppointmentID)
		if fresh := s.engine.Validate(pre.Request, occ); !fresh.Accepted {
			res.Alternatives = fresh.Alternatives
			if len(res.ConflictsWith) == 0 {
				res.ConflictsWith = fresh.ConflictsWith
			}
		}
	}
	return BookingResult{Validation: res, Stale: true}, nil
}

func occupiedBySelf(res availability.ValidationResult, id domain.AppointmentID) bool {
	if res.Reason != availability.SlotOccupied || len(res.ConflictsWith) != 1 {
		return false
	}
	return res.ConflictsWith[0] == id
}

func mergeInput(current domain.Appointment, in BookingInput) BookingInput {
	out := in
	if strings.TrimSpace(out.Date) == "" {
		out.Date = current.Date
	}
	if strings.TrimSpace(out.Time) == "" {
		out.Time = current.Time
		if !in.Extended && in.DurationMinutes == 0 {
			out.Extended = current.Extended
		}
	}
	if strings.TrimSpace(out.PatientRUT) == "" {
		out.PatientRUT = current.PatientID
	}
	if strings.TrimSpace(out.TreatmentKind) == "" {
		out.TreatmentKind = current.TreatmentKind
	}
	if strings.TrimSpace(out.Kind) == "" {
		out.Kind = string(current.Kind)
	}
	if strings.TrimSpace(out.Status) == "" {
		out.Status = string(current.Status)
	}
	return out
}
