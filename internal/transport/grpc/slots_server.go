package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/service/appointments"
	"podoclinic/backend/internal/store"
)

type SlotsServer struct {
	svc slotsService
	log *slog.Logger
}

type slotsService interface {
	Availability(ctx context.Context, rawDate string, excludeID domain.AppointmentID) (appointments.AvailabilityResult, error)
	Check(ctx context.Context, in appointments.BookingInput) (availability.ValidationResult, error)
	Book(ctx context.Context, in appointments.BookingInput) (appointments.BookingResult, error)
	Reschedule(ctx context.Context, id domain.AppointmentID, in appointments.BookingInput) (appointments.BookingResult, error)
	SetStatus(ctx context.Context, id domain.AppointmentID, rawStatus string) (domain.Appointment, error)
	List(ctx context.Context, rawDate string) ([]domain.Appointment, error)
}

func NewSlotsServer(svc slotsService, log *slog.Logger) *SlotsServer {
	if log == nil {
		log = slog.Default()
	}
	return &SlotsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.slots")),
	}
}

func (s *SlotsServer) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fecha := stringField(req, "fecha")
	res, err := s.svc.Availability(ctx, fecha, domain.AppointmentID(stringField(req, "excluir")))
	if err != nil {
		return nil, s.statusError(log, "availability failed", err, slog.String("fecha", fecha))
	}

	log.Debug("availability computed",
		slog.String("fecha", res.Date.String()),
		slog.Int("slots", len(res.Slots)),
		slog.Bool("degraded", res.Degraded),
	)
	return newStruct(availabilityFields(res))
}

func (s *SlotsServer) CheckBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckBooking"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := s.svc.Check(ctx, bookingInput(req))
	if err != nil {
		return nil, s.statusError(log, "check failed", err)
	}
	return newStruct(validationFields(res))
}

func (s *SlotsServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in := bookingInput(req)
	in.IdempotencyKey = idempotencyKey(ctx)
	res, err := s.svc.Book(ctx, in)
	if err != nil {
		return nil, s.statusError(log, "appointment create failed", err, slog.String("fecha", in.Date), slog.String("hora", in.Time))
	}
	if !res.Accepted {
		log.Info("appointment create rejected",
			slog.String("fecha", in.Date),
			slog.String("hora", in.Time),
			slog.String("reason", string(res.Validation.Reason)),
			slog.Bool("stale", res.Stale),
		)
	}
	return newStruct(bookingFields(res))
}

func (s *SlotsServer) UpdateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "id")
	if id == "" {
		log.Warn("invalid request", slog.String("reason", "missing_id"))
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	res, err := s.svc.Reschedule(ctx, domain.AppointmentID(id), bookingInput(req))
	if err != nil {
		return nil, s.statusError(log, "appointment update failed", err, slog.String("appointment_id", id))
	}
	return newStruct(bookingFields(res))
}

func (s *SlotsServer) SetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SetStatus"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id := stringField(req, "id")
	if id == "" {
		log.Warn("invalid request", slog.String("reason", "missing_id"))
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	appt, err := s.svc.SetStatus(ctx, domain.AppointmentID(id), stringField(req, "estado"))
	if err != nil {
		return nil, s.statusError(log, "status change failed", err, slog.String("appointment_id", id))
	}
	log.Info("appointment status changed", slog.String("appointment_id", id), slog.String("estado", string(appt.Status)))
	return newStruct(map[string]any{"cita": appointmentFields(appt)})
}

func (s *SlotsServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fecha := stringField(req, "fecha")
	appts, err := s.svc.List(ctx, fecha)
	if err != nil {
		return nil, s.statusError(log, "appointments list failed", err, slog.String("fecha", fecha))
	}

	out := make([]any, 0, len(appts))
	for _, a := range appts {
		out = append(out, appointmentFields(a))
	}
	log.Debug("appointments listed", slog.String("fecha", fecha), slog.Int("count", len(out)))
	return newStruct(map[string]any{"citas": out})
}

func (s *SlotsServer) statusError(log *slog.Logger, msg string, err error, attrs ...any) error {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, store.ErrInvalidTransition):
		log.Info(msg, append(attrs, slog.Any("err", err))...)
		return status.Error(codes.FailedPrecondition, "That status change is not allowed for this appointment.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(msg, append(attrs, slog.Any("err", err))...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info(msg, append(attrs, slog.Any("err", err))...)
		return status.Error(codes.FailedPrecondition, "That slot was just taken. Pick a different slot.")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	}
	log.Error(msg, append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Internal, "internal error")
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
