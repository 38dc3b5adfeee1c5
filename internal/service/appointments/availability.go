package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

// SnapshotSource names where a day's appointments came from.
type SnapshotSource string

const (
	SourceDate  SnapshotSource = "fecha"
	SourceDebug SnapshotSource = "debug"
	SourceSeed  SnapshotSource = "servidor"
)

type snapshot struct {
	appointments []domain.Appointment
	source       SnapshotSource
}

// DiscrepancyKind tells which side of the cross-check saw a slot as free.
type DiscrepancyKind string

const (
	FreeOnlyOnServer DiscrepancyKind = "solo_servidor"
	FreeOnlyLocally  DiscrepancyKind = "solo_local"
)

type Discrepancy struct {
	Slot domain.TimeSlot
	Kind DiscrepancyKind
}

type AvailabilityResult struct {
	Date      domain.Date
	Slots     []availability.AvailableSlot
	Occupied  []domain.TimeSlot
	Contested []domain.TimeSlot
	Anomalies []availability.Anomaly
	Source    SnapshotSource
	// Degraded is set when no snapshot could be read and Slots is the
	// store's own suggestion, unchecked.
	Degraded      bool
	Discrepancies []Discrepancy
}

// Availability computes the selectable slots for rawDate. When excludeID is
// set the result is for editing that appointment.
func (s *Service) Availability(ctx context.Context, rawDate string, excludeID domain.AppointmentID) (AvailabilityResult, error) {
	if strings.TrimSpace(rawDate) == "" {
		return AvailabilityResult{}, validationError("fecha is required")
	}
	date, err := domain.ParseDate(rawDate)
	if err != nil {
		return AvailabilityResult{}, validationError("invalid fecha")
	}

	snap, err := s.snapshot(ctx, date)
	if err != nil {
		return s.degraded(ctx, date, err)
	}

	occ := s.engine.ResolveOccupancy(snap.appointments, date, excludeID)
	var req *domain.BookingRequest
	if excludeID != "" {
		req = &domain.BookingRequest{Date: date.String(), ExcludeAppointmentID: excludeID}
	}
	out := AvailabilityResult{
		Date:      date,
		Slots:     s.engine.ComputeAvailableSlots(s.engine.GenerateGrid(), occ, req),
		Occupied:  occ.Slots(),
		Contested: occ.Contested(),
		Anomalies: occ.Anomalies(),
		Source:    snap.source,
	}

	if excludeID == "" {
		out.Discrepancies = s.crossCheck(ctx, date, out.Slots)
	}
	return out, nil
}

// snapshot reads the day's appointments, falling back to the unfiltered
// listing when the per-day listing fails.
func (s *Service) snapshot(ctx context.Context, date domain.Date) (snapshot, error) {
	appts, err := s.store.ListByDate(ctx, date)
	if err == nil {
		return snapshot{appointments: appts, source: SourceDate}, nil
	}
	if ctx.Err() != nil {
		return snapshot{}, ctx.Err()
	}
	s.log.WarnContext(ctx, "per-day listing failed, using full listing",
		slog.String("fecha", date.String()),
		slog.String("error", err.Error()),
	)

	all, allErr := s.store.ListAll(ctx)
	if allErr != nil {
		return snapshot{}, fmt.Errorf("list appointments: %w", errors.Join(err, allErr))
	}
	return snapshot{appointments: all, source: SourceDebug}, nil
}

func (s *Service) degraded(ctx context.Context, date domain.Date, cause error) (AvailabilityResult, error) {
	suggester, ok := s.store.(store.SlotSuggester)
	if !ok {
		return AvailabilityResult{}, cause
	}
	seed, err := suggester.SuggestedSlots(ctx, date)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("%w (suggested slots: %v)", cause, err)
	}
	s.log.ErrorContext(ctx, "serving unchecked suggested slots",
		slog.String("fecha", date.String()),
		slog.String("error", cause.Error()),
	)

	slots := make([]availability.AvailableSlot, 0, len(seed))
	for _, slot := range dedupeSlots(seed) {
		if !s.engine.OnGrid(slot) {
			continue
		}
		slots = append(slots, availability.AvailableSlot{Slot: slot, Free: true})
	}
	return AvailabilityResult{Date: date, Slots: slots, Source: SourceSeed, Degraded: true}, nil
}

// crossCheck compares the engine's free slots with the store's suggestion.
// Differences are reported, never applied.
func (s *Service) crossCheck(ctx context.Context, date domain.Date, computed []availability.AvailableSlot) []Discrepancy {
	suggester, ok := s.store.(store.SlotSuggester)
	if !ok {
		return nil
	}
	seed, err := suggester.SuggestedSlots(ctx, date)
	if err != nil {
		s.log.DebugContext(ctx, "suggested slots unavailable", slog.String("error", err.Error()))
		return nil
	}

	local := make(map[domain.TimeSlot]bool, len(computed))
	for _, a := range computed {
		if a.Free {
			local[a.Slot] = true
		}
	}
	server := make(map[domain.TimeSlot]bool, len(seed))
	for _, slot := range seed {
		server[slot] = true
	}

	var out []Discrepancy
	for slot := range server {
		if !local[slot] {
			out = append(out, Discrepancy{Slot: slot, Kind: FreeOnlyOnServer})
		}
	}
	for slot := range local {
		if !server[slot] {
			out = append(out, Discrepancy{Slot: slot, Kind: FreeOnlyLocally})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].Kind < out[j].Kind
	})

	if len(out) > 0 {
		s.log.WarnContext(ctx, "suggested slots disagree with computed availability",
			slog.String("fecha", date.String()),
			slog.Int("discrepancies", len(out)),
		)
	}
	return out
}

func dedupeSlots(slots []domain.TimeSlot) []domain.TimeSlot {
	seen := make(map[domain.TimeSlot]bool, len(slots))
	out := make([]domain.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if seen[slot] {
			continue
		}
		seen[slot] = true
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
