// Package rest serves the clinic console's JSON API over echo.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/service/appointments"
	"podoclinic/backend/internal/store"
)

type slotsService interface {
	Availability(ctx context.Context, rawDate string, excludeID domain.AppointmentID) (appointments.AvailabilityResult, error)
	Check(ctx context.Context, in appointments.BookingInput) (availability.ValidationResult, error)
	Book(ctx context.Context, in appointments.BookingInput) (appointments.BookingResult, error)
	Reschedule(ctx context.Context, id domain.AppointmentID, in appointments.BookingInput) (appointments.BookingResult, error)
	SetStatus(ctx context.Context, id domain.AppointmentID, rawStatus string) (domain.Appointment, error)
	List(ctx context.Context, rawDate string) ([]domain.Appointment, error)
}

type Handler struct {
	svc slotsService
	log *slog.Logger
}

func NewHandler(svc slotsService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log.With(slog.String("component", "rest.citas"))}
}

// RegisterRoutes mounts the appointment routes under g. Paths keep the
// trailing slash the console uses; the server strips it before routing.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/citas", h.ListAppointments)
	g.GET("/citas/disponibles", h.GetAvailability)
	g.POST("/citas/validar", h.CheckBooking)
	g.POST("/citas", h.CreateAppointment)
	g.PUT("/citas/:id", h.UpdateAppointment)
	g.PATCH("/citas/:id/estado", h.SetStatus)
}

// ListAppointments handles GET /citas?fecha=.
func (h *Handler) ListAppointments(c echo.Context) error {
	appts, err := h.svc.List(c.Request().Context(), c.QueryParam("fecha"))
	if err != nil {
		return h.httpError(c, "appointments list failed", err)
	}
	out := make([]citaResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toCita(a))
	}
	return c.JSON(http.StatusOK, out)
}

// GetAvailability handles GET /citas/disponibles?fecha=&excluir=.
func (h *Handler) GetAvailability(c echo.Context) error {
	res, err := h.svc.Availability(c.Request().Context(), c.QueryParam("fecha"), domain.AppointmentID(strings.TrimSpace(c.QueryParam("excluir"))))
	if err != nil {
		return h.httpError(c, "availability failed", err)
	}
	return c.JSON(http.StatusOK, NewDisponiblesResponse(res))
}

// CheckBooking handles POST /citas/validar. An edit is previewed by naming
// the appointment in "excluir" (body or query). The answer is always 200; a
// rejection is reported in the body.
func (h *Handler) CheckBooking(c echo.Context) error {
	var req citaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := req.input()
	if in.ExcludeAppointmentID == "" {
		in.ExcludeAppointmentID = domain.AppointmentID(strings.TrimSpace(c.QueryParam("excluir")))
	}
	res, err := h.svc.Check(c.Request().Context(), in)
	if err != nil {
		return h.httpError(c, "check failed", err)
	}
	return c.JSON(http.StatusOK, toValidation(res))
}

// CreateAppointment handles POST /citas.
func (h *Handler) CreateAppointment(c echo.Context) error {
	var req citaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := req.input()
	in.IdempotencyKey = idempotencyKey(c)

	res, err := h.svc.Book(c.Request().Context(), in)
	if err != nil {
		return h.httpError(c, "appointment create failed", err)
	}
	if !res.Accepted {
		return c.JSON(http.StatusConflict, toBooking(res))
	}
	return c.JSON(http.StatusCreated, toBooking(res))
}

// UpdateAppointment handles PUT /citas/:id.
func (h *Handler) UpdateAppointment(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	var req citaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Reschedule(c.Request().Context(), domain.AppointmentID(id), req.input())
	if err != nil {
		return h.httpError(c, "appointment update failed", err)
	}
	if !res.Accepted {
		return c.JSON(http.StatusConflict, toBooking(res))
	}
	return c.JSON(http.StatusOK, toBooking(res))
}

// SetStatus handles PATCH /citas/:id/estado.
func (h *Handler) SetStatus(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	var req estadoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.SetStatus(c.Request().Context(), domain.AppointmentID(id), req.Estado)
	if err != nil {
		return h.httpError(c, "status change failed", err)
	}
	return c.JSON(http.StatusOK, toCita(appt))
}

func (h *Handler) httpError(c echo.Context, msg string, err error) error {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, store.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "status change not allowed")
	case errors.Is(err, store.ErrIdempotencyConflict):
		return echo.NewHTTPError(http.StatusConflict, "idempotency key already used for a different appointment")
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "slot was just taken")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "appointment store timed out")
	}
	h.log.ErrorContext(c.Request().Context(), msg,
		slog.String("path", c.Path()),
		slog.Any("err", err),
	)
	return echo.NewHTTPError(http.StatusBadGateway, "appointment store unavailable")
}

func idempotencyKey(c echo.Context) string {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = c.Request().Header.Get("X-Idempotency-Key")
	}
	return strings.TrimSpace(key)
}
