// Package availability computes bookable slots for a clinic day from a
// snapshot of that day's appointments.
//
// The engine is a pure function of its inputs. It is a client side
// pre-check: the appointment store performs the authoritative, serialized
// check when an appointment is written.
package availability

import (
	"log/slog"

	"podoclinic/backend/internal/domain"
)

const defaultAlternatives = 3

type Engine struct {
	hours        domain.BusinessHours
	log          *slog.Logger
	alternatives int
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithAlternatives sets how many feasible slots a rejection suggests.
func WithAlternatives(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.alternatives = n
		}
	}
}

func New(hours domain.BusinessHours, opts ...Option) (*Engine, error) {
	if err := hours.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		hours:        hours,
		log:          slog.Default(),
		alternatives: defaultAlternatives,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(slog.String("component", "availability"))
	return e, nil
}

func (e *Engine) Hours() domain.BusinessHours {
	return e.hours
}

// GenerateGrid returns every slot start of the business day in order.
func (e *Engine) GenerateGrid() []domain.TimeSlot {
	step := e.hours.StepMinutes()
	first := e.hours.StartHour * 60
	last := e.hours.EndHour * 60

	grid := make([]domain.TimeSlot, 0, (last-first)/step+1)
	for m := first; m <= last; m += step {
		grid = append(grid, domain.SlotAt(m))
	}
	return grid
}

func (e *Engine) OnGrid(slot domain.TimeSlot) bool {
	if !e.hours.Contains(slot) {
		return false
	}
	return (slot.Minutes()-e.hours.StartHour*60)%e.hours.StepMinutes() == 0
}

func (e *Engine) next(slot domain.TimeSlot) domain.TimeSlot {
	return slot.Add(e.hours.Step)
}
