package availability

import (
	"sort"

	"podoclinic/backend/internal/domain"
)

// Reason is the discriminant of a rejected booking. Rejections are expected
// outcomes and are returned, not raised.
type Reason string

const (
	SlotOccupied     Reason = "slot_occupied"
	NextSlotOccupied Reason = "next_slot_occupied"
	InvalidExtension Reason = "invalid_extension"
	InvalidSlot      Reason = "invalid_slot"
)

func (r Reason) Message() string {
	switch r {
	case SlotOccupied:
		return "the requested slot is already booked"
	case NextSlotOccupied:
		return "the hour after the requested slot is already booked"
	case InvalidExtension:
		return "a two hour appointment cannot start in the last slot of the day"
	case InvalidSlot:
		return "the requested time is not a bookable slot for that day"
	default:
		return ""
	}
}

type ValidationResult struct {
	Accepted bool
	Reason   Reason

	// Request is the input with Date and Time normalized. Slot and NextSlot
	// are the slots the booking would hold; NextSlot is empty unless extended.
	Request  domain.BookingRequest
	Slot     domain.TimeSlot
	NextSlot domain.TimeSlot

	ConflictsWith []domain.AppointmentID
	Alternatives  []domain.TimeSlot
}

// Validate checks a proposed booking against occ. An extended booking
// starting at the last slot is always InvalidExtension, before any
// occupancy check.
func (e *Engine) Validate(req domain.BookingRequest, occ OccupancyMap) ValidationResult {
	res := ValidationResult{Request: req}

	date, err := domain.ParseDate(req.Date)
	if err != nil || date != occ.Date() {
		return e.reject(res, InvalidSlot, occ, "")
	}
	slot, err := domain.ParseTimeSlot(req.Time)
	if err != nil || !e.OnGrid(slot) {
		return e.reject(res, InvalidSlot, occ, "")
	}

	res.Request.Date = date.String()
	res.Request.Time = slot.String()
	res.Slot = slot

	if req.Extended {
		next := e.next(slot)
		if !e.OnGrid(next) {
			return e.reject(res, InvalidExtension, occ, slot)
		}
		res.NextSlot = next
	}

	if others := occ.ClaimsExcept(slot, req.ExcludeAppointmentID); len(others) > 0 {
		res.ConflictsWith = claimIDs(others)
		return e.reject(res, SlotOccupied, occ, slot)
	}
	if req.Extended {
		if others := occ.ClaimsExcept(res.NextSlot, req.ExcludeAppointmentID); len(others) > 0 {
			res.ConflictsWith = claimIDs(others)
			return e.reject(res, NextSlotOccupied, occ, slot)
		}
	}

	res.Accepted = true
	return res
}

func (e *Engine) reject(res ValidationResult, reason Reason, occ OccupancyMap, from domain.TimeSlot) ValidationResult {
	res.Accepted = false
	res.Reason = reason
	res.Alternatives = e.alternativesFor(occ, res.Request, from)
	return res
}

// alternativesFor lists feasible starts after from, then wraps to the
// earlier part of the day.
func (e *Engine) alternativesFor(occ OccupancyMap, req domain.BookingRequest, from domain.TimeSlot) []domain.TimeSlot {
	if e.alternatives == 0 {
		return nil
	}
	grid := e.GenerateGrid()
	var after, before []domain.TimeSlot
	for _, slot := range grid {
		if slot == from || !e.feasible(occ, slot, req.Extended, req.ExcludeAppointmentID) {
			continue
		}
		if from != "" && slot < from {
			before = append(before, slot)
		} else {
			after = append(after, slot)
		}
	}
	out := append(after, before...)
	if len(out) > e.alternatives {
		out = out[:e.alternatives]
	}
	return out
}

func (e *Engine) feasible(occ OccupancyMap, slot domain.TimeSlot, extended bool, excludeID domain.AppointmentID) bool {
	if len(occ.ClaimsExcept(slot, excludeID)) > 0 {
		return false
	}
	if !extended {
		return true
	}
	next := e.next(slot)
	return e.OnGrid(next) && len(occ.ClaimsExcept(next, excludeID)) == 0
}

func claimIDs(claims []Claim) []domain.AppointmentID {
	out := make([]domain.AppointmentID, 0, len(claims))
	seen := make(map[domain.AppointmentID]struct{}, len(claims))
	for _, c := range claims {
		if _, ok := seen[c.AppointmentID]; ok {
			continue
		}
		seen[c.AppointmentID] = struct{}{}
		out = append(out, c.AppointmentID)
	}
	return out
}

type SlotState string

const (
	SelectableFree     SlotState = "free"
	SelectableOriginal SlotState = "original"
)

// AvailableSlot is one selectable slot. Free means no appointment other than
// the one being edited claims it; Original marks the edited appointment's
// current start, which stays selectable even when not free. Extendable
// reports whether a two hour booking could start here.
type AvailableSlot struct {
	Slot       domain.TimeSlot
	Free       bool
	Original   bool
	Extendable bool
}

func (s AvailableSlot) State() SlotState {
	if s.Original {
		return SelectableOriginal
	}
	return SelectableFree
}

// ComputeAvailableSlots returns the slots of grid not occupied in occ. When
// req edits an appointment, that appointment's original start slot is
// always included and flagged Original. req may be nil.
func (e *Engine) ComputeAvailableSlots(grid []domain.TimeSlot, occ OccupancyMap, req *domain.BookingRequest) []AvailableSlot {
	var excludeID domain.AppointmentID
	if req != nil {
		excludeID = req.ExcludeAppointmentID
	}
	original, hasOriginal := occ.OriginalSlot(excludeID)

	out := make([]AvailableSlot, 0, len(grid)+1)
	seenOriginal := false
	for _, slot := range grid {
		free := len(occ.ClaimsExcept(slot, excludeID)) == 0
		isOriginal := hasOriginal && slot == original
		if !free && !isOriginal {
			continue
		}
		if isOriginal {
			seenOriginal = true
		}
		out = append(out, AvailableSlot{
			Slot:       slot,
			Free:       free,
			Original:   isOriginal,
			Extendable: free && e.feasible(occ, slot, true, excludeID),
		})
	}

	if hasOriginal && !seenOriginal {
		out = append(out, AvailableSlot{Slot: original, Original: true})
		sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	}
	return out
}

// Slots flattens available slots to their times.
func Slots(available []AvailableSlot) []domain.TimeSlot {
	out := make([]domain.TimeSlot, 0, len(available))
	for _, a := range available {
		out = append(out, a.Slot)
	}
	return out
}
