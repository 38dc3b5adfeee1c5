// Package remote adapts the clinic's HTTP JSON appointment API to the store
// ports. Everything it reports as an error is an infrastructure failure;
// slot rejections are decided by the caller.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

const maxBodyBytes = 4 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements store.AppointmentStore, store.SlotSuggester and
// store.ClinicDirectory against the API.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger
}

func New(cfg Config, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("remote store base url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		c := *httpClient
		c.Timeout = cfg.Timeout
		httpClient = &c
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{base: base, http: httpClient, log: log.With(slog.String("component", "remote_store"))}, nil
}

func (c *Client) ListByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	q := url.Values{"fecha": {date.String()}}
	b, err := c.do(ctx, http.MethodGet, "citas/", q, nil)
	if err != nil {
		return nil, err
	}
	return c.appointments(b, "citas/")
}

func (c *Client) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	b, err := c.do(ctx, http.MethodGet, "citas/debug/", nil, nil)
	if err != nil {
		return nil, err
	}
	return c.appointments(b, "citas/debug/")
}

func (c *Client) Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	b, err := c.do(ctx, http.MethodGet, citaPath(id), nil, nil)
	if err != nil {
		return domain.Appointment{}, err
	}
	return decodeCita(b)
}

func (c *Client) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	body := citaFrom(appt)
	// The API assigns ids; a caller supplied id is not sent on create.
	body.ID = ""
	b, err := c.do(ctx, http.MethodPost, "citas/", nil, body)
	if err != nil {
		return domain.Appointment{}, err
	}
	return decodeCita(b)
}

func (c *Client) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == "" {
		return domain.Appointment{}, errors.New("update requires an appointment id")
	}
	b, err := c.do(ctx, http.MethodPut, citaPath(appt.ID), nil, citaFrom(appt))
	if err != nil {
		return domain.Appointment{}, err
	}
	return decodeCita(b)
}

// SetStatus reads the appointment and writes it back with the new status.
// The API has no dedicated status endpoint.
func (c *Client) SetStatus(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error) {
	current, err := c.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	from, err := domain.ParseStatus(string(current.Status))
	if err != nil {
		return domain.Appointment{}, err
	}
	if !from.CanTransitionTo(status) {
		return domain.Appointment{}, fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, from, status)
	}
	current.Status = status
	return c.Update(ctx, current)
}

func (c *Client) SuggestedSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
	q := url.Values{"fecha": {date.String()}}
	b, err := c.do(ctx, http.MethodGet, "citas/disponibles/", q, nil)
	if err != nil {
		return nil, err
	}
	var out disponiblesJSON
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode available slots: %w", err)
	}
	slots := make([]domain.TimeSlot, 0, len(out.HorasDisponibles))
	for _, raw := range out.HorasDisponibles {
		slot, err := domain.ParseTimeSlot(raw)
		if err != nil {
			c.log.WarnContext(ctx, "ignoring malformed suggested slot", slog.String("hora", raw))
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (c *Client) Patient(ctx context.Context, rut string) (domain.Patient, error) {
	if strings.TrimSpace(rut) == "" {
		return domain.Patient{}, store.ErrNotFound
	}
	b, err := c.do(ctx, http.MethodGet, "pacientes/"+url.PathEscape(strings.TrimSpace(rut))+"/", nil, nil)
	if err != nil {
		return domain.Patient{}, err
	}
	var p pacienteJSON
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Patient{}, fmt.Errorf("decode patient: %w", err)
	}
	if p.RUT == "" {
		p.RUT = rut
	}
	return domain.Patient{RUT: p.RUT, Name: p.Nombre, Phone: p.Telefono, Email: p.Correo}, nil
}

func (c *Client) appointments(b []byte, path string) ([]domain.Appointment, error) {
	rows, err := decodeCitas(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	out := make([]domain.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.appointment())
	}
	return out, nil
}

func decodeCita(b []byte) (domain.Appointment, error) {
	var cj citaJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return domain.Appointment{}, fmt.Errorf("decode appointment: %w", err)
	}
	return cj.appointment(), nil
}

func citaPath(id domain.AppointmentID) string {
	return "citas/" + url.PathEscape(string(id)) + "/"
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := c.base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	c.log.DebugContext(ctx, "appointment store call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, store.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%s %s: %w", method, path, store.ErrConflict)
	case resp.StatusCode == http.StatusBadRequest && looksLikeUniqueViolation(b):
		return nil, fmt.Errorf("%s %s: %s: %w", method, path, apiError(resp.StatusCode, b), store.ErrConflict)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.New(apiError(resp.StatusCode, b))
	}
	return b, nil
}

// looksLikeUniqueViolation detects the 400 the API returns when the
// (fecha, hora) uniqueness constraint rejects a write.
func looksLikeUniqueViolation(body []byte) bool {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	raw, ok := payload["non_field_errors"]
	if !ok {
		return false
	}
	s := strings.ToLower(string(raw))
	return strings.Contains(s, "unique") || strings.Contains(s, "único") || strings.Contains(s, "unico")
}
