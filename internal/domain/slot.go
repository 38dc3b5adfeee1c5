package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTime = errors.New("invalid time")
	ErrInvalidDate = errors.New("invalid date")
)

// TimeSlot is a zero-padded 24-hour "HH:MM" value. Lexicographic order is
// chronological order.
type TimeSlot string

type meridiemSuffix struct {
	text string
	pm   bool
}

var meridiemSuffixes = []meridiemSuffix{
	{text: "a. m.", pm: false},
	{text: "p. m.", pm: true},
	{text: "a.m.", pm: false},
	{text: "p.m.", pm: true},
	{text: "am", pm: false},
	{text: "pm", pm: true},
}

// ParseTimeSlot normalizes the time representations produced by the
// appointment store ("9:00", "09:00:00", "09:00:00.000000", "09.00",
// "9:00 a. m.") to "HH:MM". Anything beyond hour and minute is dropped.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTime)
	}

	meridiem := false
	pm := false
	for _, suffix := range meridiemSuffixes {
		if strings.HasSuffix(s, suffix.text) {
			meridiem = true
			pm = suffix.pm
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix.text))
			break
		}
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '.' })
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	if meridiem {
		if hour < 1 || hour > 12 {
			return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		switch {
		case pm && hour < 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
	}
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	return SlotAt(hour*60 + minute), nil
}

// SlotAt returns the slot starting the given number of minutes after midnight.
func SlotAt(minutes int) TimeSlot {
	return TimeSlot(fmt.Sprintf("%02d:%02d", minutes/60, minutes%60))
}

// Minutes returns minutes after midnight, or -1 when the slot is not normalized.
func (s TimeSlot) Minutes() int {
	if len(s) != 5 || s[2] != ':' {
		return -1
	}
	hour, err := strconv.Atoi(string(s[:2]))
	if err != nil {
		return -1
	}
	minute, err := strconv.Atoi(string(s[3:]))
	if err != nil {
		return -1
	}
	return hour*60 + minute
}

func (s TimeSlot) Add(d time.Duration) TimeSlot {
	return SlotAt(s.Minutes() + int(d/time.Minute))
}

func (s TimeSlot) String() string {
	return string(s)
}

// BusinessHours bounds the bookable day. Slots start every Step from
// StartHour:00 up to and including EndHour:00.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Step      time.Duration
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{StartHour: 9, EndHour: 18, Step: time.Hour}
}

func (h BusinessHours) Validate() error {
	if h.StartHour < 0 || h.StartHour > 23 {
		return fmt.Errorf("start hour %d out of range", h.StartHour)
	}
	if h.EndHour < h.StartHour || h.EndHour > 23 {
		return fmt.Errorf("end hour %d must be between start hour %d and 23", h.EndHour, h.StartHour)
	}
	if h.Step < time.Minute || h.Step%time.Minute != 0 {
		return fmt.Errorf("slot step %s must be a whole number of minutes", h.Step)
	}
	return nil
}

func (h BusinessHours) StepMinutes() int {
	return int(h.Step / time.Minute)
}

// First and Last are the first and last slot starts of the day.
func (h BusinessHours) First() TimeSlot {
	return SlotAt(h.StartHour * 60)
}

func (h BusinessHours) Last() TimeSlot {
	return SlotAt(h.EndHour * 60)
}

// Contains reports whether slot starts inside [First, Last].
func (h BusinessHours) Contains(slot TimeSlot) bool {
	m := slot.Minutes()
	return m >= h.StartHour*60 && m <= h.EndHour*60
}

// Date is a calendar day formatted "YYYY-MM-DD".
type Date string

const dateLayout = "2006-01-02"

// ParseDate accepts "YYYY-MM-DD", optionally followed by a time part
// ("2024-06-10T00:00:00Z"), and returns the bare day.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if len(s) > len(dateLayout) && (s[len(dateLayout)] == 'T' || s[len(dateLayout)] == ' ') {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date(t.Format(dateLayout)), nil
}

func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

func (d Date) String() string {
	return string(d)
}
