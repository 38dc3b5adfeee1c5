package availability

import (
	"log/slog"
	"sort"
	"time"

	"podoclinic/backend/internal/domain"
)

type ClaimKind string

const (
	// ClaimStart marks an appointment's own start slot.
	ClaimStart ClaimKind = "start"
	// ClaimExtension marks the second slot of an extended appointment.
	ClaimExtension ClaimKind = "extension"
)

// Claim attributes an occupied slot to one appointment.
type Claim struct {
	AppointmentID domain.AppointmentID
	Kind          ClaimKind
}

type AnomalyKind string

const (
	AnomalyMalformedDate    AnomalyKind = "malformed_date"
	AnomalyMalformedTime    AnomalyKind = "malformed_time"
	AnomalyUnknownStatus    AnomalyKind = "unknown_status"
	AnomalyExtensionOverrun AnomalyKind = "extension_overrun"
	AnomalyOffGrid          AnomalyKind = "off_grid"
)

// Anomaly records an input appointment that could not be applied as stored.
type Anomaly struct {
	AppointmentID domain.AppointmentID
	Kind          AnomalyKind
	Detail        string
}

// OccupancyMap is the set of occupied slots for one date. It is built fresh
// for each query and never mutated after construction.
type OccupancyMap struct {
	date   domain.Date
	step   time.Duration
	claims map[domain.TimeSlot][]Claim

	excluded         domain.AppointmentID
	originalStart    domain.TimeSlot
	originalExtended bool
	hasOriginal      bool

	anomalies []Anomaly
}

func newOccupancyMap(date domain.Date, step time.Duration, excluded domain.AppointmentID) OccupancyMap {
	return OccupancyMap{
		date:     date,
		step:     step,
		claims:   make(map[domain.TimeSlot][]Claim),
		excluded: excluded,
	}
}

// ResolveOccupancy maps the appointments booked on forDate onto slots.
// Cancelled appointments never occupy. The appointment identified by
// excludeID is left out so that an edit does not block itself; its original
// slot is remembered for ComputeAvailableSlots.
//
// A record with a malformed date or time is skipped and reported as an
// anomaly instead of failing the whole computation. A record whose time
// parses but is not a slot start blocks every grid slot its span overlaps
// and is reported as AnomalyOffGrid.
func (e *Engine) ResolveOccupancy(appts []domain.Appointment, forDate domain.Date, excludeID domain.AppointmentID) OccupancyMap {
	m := newOccupancyMap(forDate, e.hours.Step, excludeID)
	closes := e.hours.EndHour * 60

	for _, a := range appts {
		day, err := a.Day()
		if err != nil {
			m.report(e.log, Anomaly{AppointmentID: a.ID, Kind: AnomalyMalformedDate, Detail: err.Error()})
			continue
		}
		if day != forDate {
			continue
		}

		start, err := a.StartSlot()
		if err != nil {
			m.report(e.log, Anomaly{AppointmentID: a.ID, Kind: AnomalyMalformedTime, Detail: err.Error()})
			continue
		}

		if excludeID != "" && a.ID == excludeID {
			m.originalStart = start
			m.originalExtended = a.Extended
			m.hasOriginal = true
			continue
		}

		status, err := domain.ParseStatus(string(a.Status))
		if err != nil {
			// An unreadable status still blocks the slot.
			m.report(e.log, Anomaly{AppointmentID: a.ID, Kind: AnomalyUnknownStatus, Detail: err.Error()})
			status = domain.StatusReserved
		}
		if !status.Occupies() {
			continue
		}

		if !e.OnGrid(start) {
			covered := e.coveringSlots(start, a.Extended)
			m.report(e.log, Anomaly{
				AppointmentID: a.ID,
				Kind:          AnomalyOffGrid,
				Detail:        offGridDetail(start, covered),
			})
			for i, slot := range covered {
				kind := ClaimExtension
				if i == 0 {
					kind = ClaimStart
				}
				m.claim(slot, Claim{AppointmentID: a.ID, Kind: kind})
			}
			continue
		}

		m.claim(start, Claim{AppointmentID: a.ID, Kind: ClaimStart})
		if !a.Extended {
			continue
		}
		next := start.Add(e.hours.Step)
		if next.Minutes() > closes {
			m.report(e.log, Anomaly{
				AppointmentID: a.ID,
				Kind:          AnomalyExtensionOverrun,
				Detail:        "extended appointment at " + start.String() + " runs past " + e.hours.Last().String(),
			})
			continue
		}
		m.claim(next, Claim{AppointmentID: a.ID, Kind: ClaimExtension})
	}

	return m
}

// coveringSlots returns the grid slots overlapped by an appointment starting
// at start, which need not be a slot start itself.
func (e *Engine) coveringSlots(start domain.TimeSlot, extended bool) []domain.TimeSlot {
	step := e.hours.StepMinutes()
	span := step
	if extended {
		span = 2 * step
	}
	from, to := start.Minutes(), start.Minutes()+span

	var out []domain.TimeSlot
	for _, slot := range e.GenerateGrid() {
		m := slot.Minutes()
		if m < to && from < m+step {
			out = append(out, slot)
		}
	}
	return out
}

func offGridDetail(start domain.TimeSlot, covered []domain.TimeSlot) string {
	if len(covered) == 0 {
		return start.String() + " is outside business hours"
	}
	detail := start.String() + " is not a slot start; blocking"
	for _, slot := range covered {
		detail += " " + slot.String()
	}
	return detail
}

func (m *OccupancyMap) claim(slot domain.TimeSlot, c Claim) {
	for _, existing := range m.claims[slot] {
		if existing == c {
			return
		}
	}
	m.claims[slot] = append(m.claims[slot], c)
}

func (m *OccupancyMap) report(log *slog.Logger, a Anomaly) {
	m.anomalies = append(m.anomalies, a)
	log.Warn(
		"appointment record anomaly",
		slog.String("date", m.date.String()),
		slog.String("appointment_id", string(a.AppointmentID)),
		slog.String("anomaly", string(a.Kind)),
		slog.String("detail", a.Detail),
	)
}

func (m OccupancyMap) Date() domain.Date {
	return m.date
}

func (m OccupancyMap) IsOccupied(slot domain.TimeSlot) bool {
	return len(m.claims[slot]) > 0
}

// Claims returns every claim on slot in resolution order.
func (m OccupancyMap) Claims(slot domain.TimeSlot) []Claim {
	c := m.claims[slot]
	if len(c) == 0 {
		return nil
	}
	out := make([]Claim, len(c))
	copy(out, c)
	return out
}

// ClaimsExcept returns the claims on slot held by appointments other than
// excludeID. A slot is free for an edit only when this is empty, whatever
// the edited appointment itself claimed.
func (m OccupancyMap) ClaimsExcept(slot domain.TimeSlot, excludeID domain.AppointmentID) []Claim {
	if excludeID == "" {
		return m.Claims(slot)
	}
	var out []Claim
	for _, c := range m.claims[slot] {
		if c.AppointmentID != excludeID {
			out = append(out, c)
		}
	}
	return out
}

// Slots returns the occupied slots in chronological order.
func (m OccupancyMap) Slots() []domain.TimeSlot {
	out := make([]domain.TimeSlot, 0, len(m.claims))
	for slot := range m.claims {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contested returns slots claimed by more than one appointment, such as the
// shared hour of two back-to-back extended appointments.
func (m OccupancyMap) Contested() []domain.TimeSlot {
	var out []domain.TimeSlot
	for slot, c := range m.claims {
		if len(c) > 1 {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m OccupancyMap) Anomalies() []Anomaly {
	if len(m.anomalies) == 0 {
		return nil
	}
	out := make([]Anomaly, len(m.anomalies))
	copy(out, m.anomalies)
	return out
}

func (m OccupancyMap) Excluded() domain.AppointmentID {
	return m.excluded
}

// OriginalSlot returns the start slot id held on this date before an edit.
func (m OccupancyMap) OriginalSlot(id domain.AppointmentID) (domain.TimeSlot, bool) {
	if id == "" {
		return "", false
	}
	if id == m.excluded {
		return m.originalStart, m.hasOriginal
	}
	for slot, claims := range m.claims {
		for _, c := range claims {
			if c.AppointmentID == id && c.Kind == ClaimStart {
				return slot, true
			}
		}
	}
	return "", false
}

// With returns a copy of m that also holds the given booking.
func (m OccupancyMap) With(id domain.AppointmentID, start domain.TimeSlot, extended bool) OccupancyMap {
	out := m
	out.claims = make(map[domain.TimeSlot][]Claim, len(m.claims)+2)
	for slot, c := range m.claims {
		out.claims[slot] = append([]Claim(nil), c...)
	}
	out.anomalies = append([]Anomaly(nil), m.anomalies...)

	out.claim(start, Claim{AppointmentID: id, Kind: ClaimStart})
	if extended {
		out.claim(start.Add(m.step), Claim{AppointmentID: id, Kind: ClaimExtension})
	}
	return out
}

func (m OccupancyMap) Len() int {
	return len(m.claims)
}
