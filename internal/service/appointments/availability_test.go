package appointments

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
)

func TestServiceAvailability_ExtendedAppointment(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(existing("a", "10:00", true)),
	}, nil)

	got, err := svc.Availability(context.Background(), testDay, "")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	want := []domain.TimeSlot{"09:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00"}
	if slots := availability.Slots(got.Slots); !reflect.DeepEqual(slots, want) {
		t.Fatalf("slots = %v, want %v", slots, want)
	}
	if got.Source != SourceDate || got.Degraded {
		t.Fatalf("source = %s degraded = %v", got.Source, got.Degraded)
	}
	if !reflect.DeepEqual(got.Occupied, []domain.TimeSlot{"10:00", "11:00"}) {
		t.Fatalf("occupied = %v", got.Occupied)
	}
}

func TestServiceAvailability_EditIncludesOriginal(t *testing.T) {
	var appts []domain.Appointment
	for i, hora := range []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00"} {
		appts = append(appts, existing(string(rune('a'+i)), hora, false))
	}
	svc := newTestService(t, &fakeStore{listByDateFn: dayOf(appts...)}, nil)

	got, err := svc.Availability(context.Background(), testDay, "c")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	if len(got.Slots) != 1 || got.Slots[0].Slot != "11:00" || !got.Slots[0].Original {
		t.Fatalf("slots = %+v", got.Slots)
	}
}

func TestServiceAvailability_FallsBackToDebugListing(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		listByDateFn: func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
			return nil, errors.New("timeout")
		},
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			return []domain.Appointment{existing("a", "09:00", false)}, nil
		},
	}, nil)

	got, err := svc.Availability(context.Background(), testDay, "")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	if got.Source != SourceDebug || len(got.Slots) != 9 {
		t.Fatalf("result = %+v", got)
	}
}

func TestServiceAvailability_DegradedToSeed(t *testing.T) {
	down := errors.New("down")
	st := &fakeSuggestingStore{
		fakeStore: &fakeStore{
			listByDateFn: func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) { return nil, down },
			listAllFn:    func(ctx context.Context) ([]domain.Appointment, error) { return nil, down },
		},
		suggestedFn: func(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
			return []domain.TimeSlot{"20:00", "10:00", "10:30", "09:00", "10:00", "08:00"}, nil
		},
	}
	svc := newTestService(t, st, nil)

	got, err := svc.Availability(context.Background(), testDay, "")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	if !got.Degraded || got.Source != SourceSeed {
		t.Fatalf("result = %+v", got)
	}
	if slots := availability.Slots(got.Slots); !reflect.DeepEqual(slots, []domain.TimeSlot{"09:00", "10:00"}) {
		t.Fatalf("slots = %v", slots)
	}
}

func TestServiceAvailability_NoSnapshotNoSeed(t *testing.T) {
	down := errors.New("down")
	svc := newTestService(t, &fakeStore{
		listByDateFn: func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) { return nil, down },
		listAllFn:    func(ctx context.Context) ([]domain.Appointment, error) { return nil, down },
	}, nil)

	if _, err := svc.Availability(context.Background(), testDay, ""); !errors.Is(err, down) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceAvailability_CrossCheckReportsDiscrepancies(t *testing.T) {
	st := &fakeSuggestingStore{
		fakeStore: &fakeStore{listByDateFn: dayOf(existing("a", "10:00", false))},
		suggestedFn: func(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
			return []domain.TimeSlot{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}, nil
		},
	}
	svc := newTestService(t, st, nil)

	got, err := svc.Availability(context.Background(), testDay, "")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	want := []Discrepancy{
		{Slot: "10:00", Kind: FreeOnlyOnServer},
		{Slot: "18:00", Kind: FreeOnlyLocally},
	}
	if !reflect.DeepEqual(got.Discrepancies, want) {
		t.Fatalf("discrepancies = %+v, want %+v", got.Discrepancies, want)
	}
	if len(got.Slots) != 9 {
		t.Fatalf("seed must not change computed slots: %v", availability.Slots(got.Slots))
	}
}

func TestServiceAvailability_ReportsAnomalies(t *testing.T) {
	bad := existing("bad", "noon", false)
	svc := newTestService(t, &fakeStore{listByDateFn: dayOf(bad, existing("ok", "12:00", false))}, nil)

	got, err := svc.Availability(context.Background(), testDay, "")
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	if len(got.Anomalies) != 1 || got.Anomalies[0].AppointmentID != "bad" {
		t.Fatalf("anomalies = %+v", got.Anomalies)
	}
	if len(got.Slots) != 9 {
		t.Fatalf("slots = %v", availability.Slots(got.Slots))
	}
}

func TestServiceCheck(t *testing.T) {
	svc := newTestService(t, &fakeStore{listByDateFn: dayOf(existing("a", "17:00", false))}, nil)

	res, err := svc.Check(context.Background(), BookingInput{Date: testDay, Time: "18:00", Extended: true})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Accepted || res.Reason != availability.InvalidExtension {
		t.Fatalf("result = %+v", res)
	}

	res, err = svc.Check(context.Background(), BookingInput{Date: testDay, Time: "16:00", Extended: true})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Reason != availability.NextSlotOccupied {
		t.Fatalf("reason = %s", res.Reason)
	}
}
