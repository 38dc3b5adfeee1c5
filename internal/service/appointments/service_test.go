package appointments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

type fakeStore struct {
	listByDateFn func(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
	listAllFn    func(ctx context.Context) ([]domain.Appointment, error)
	getFn        func(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error)
	createFn     func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	updateFn     func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	setStatusFn  func(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error)
}

func (f *fakeStore) ListByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	if f.listByDateFn == nil {
		panic("ListByDate not configured")
	}
	return f.listByDateFn(ctx, date)
}

func (f *fakeStore) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	if f.listAllFn == nil {
		panic("ListAll not configured")
	}
	return f.listAllFn(ctx)
}

func (f *fakeStore) Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeStore) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, appt)
}

func (f *fakeStore) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, appt)
}

func (f *fakeStore) SetStatus(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error) {
	if f.setStatusFn == nil {
		panic("SetStatus not configured")
	}
	return f.setStatusFn(ctx, id, status)
}

type fakeSuggestingStore struct {
	*fakeStore
	suggestedFn func(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error)
}

func (f *fakeSuggestingStore) SuggestedSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
	if f.suggestedFn == nil {
		panic("SuggestedSlots not configured")
	}
	return f.suggestedFn(ctx, date)
}

type fakeDirectory struct {
	patientFn func(ctx context.Context, rut string) (domain.Patient, error)
}

func (f *fakeDirectory) Patient(ctx context.Context, rut string) (domain.Patient, error) {
	if f.patientFn == nil {
		panic("Patient not configured")
	}
	return f.patientFn(ctx, rut)
}

const (
	testDay = "2024-06-10"
	testRUT = "12.345.678-5"
)

func newTestService(t *testing.T, st store.AppointmentStore, dir store.ClinicDirectory) *Service {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := availability.New(domain.DefaultBusinessHours(), availability.WithLogger(log))
	if err != nil {
		t.Fatalf("availability.New error: %v", err)
	}
	return NewService(st, dir, engine, log)
}

func dayOf(appts ...domain.Appointment) func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	return func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
		return appts, nil
	}
}

func existing(id, hora string, extended bool) domain.Appointment {
	return domain.Appointment{
		ID:            domain.AppointmentID(id),
		Date:          testDay,
		Time:          hora,
		Extended:      extended,
		PatientID:     "123456785",
		TreatmentKind: "general",
		Kind:          domain.KindPodiatry,
		Status:        domain.StatusReserved,
	}
}

func knownPatient() *fakeDirectory {
	return &fakeDirectory{
		patientFn: func(ctx context.Context, rut string) (domain.Patient, error) {
			return domain.Patient{RUT: domain.NormalizeRUT(rut), Name: "Ana"}, nil
		},
	}
}

func TestServiceCheck_EditPreviewIgnoresOwnSlots(t *testing.T) {
	svc := newTestService(t, &fakeStore{listByDateFn: dayOf(existing("x", "10:00", true))}, nil)
	in := BookingInput{Date: testDay, Time: "11:00", Extended: true, PatientRUT: testRUT}

	res, err := svc.Check(context.Background(), in)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Accepted || res.Reason != availability.SlotOccupied || !reflect.DeepEqual(res.ConflictsWith, []domain.AppointmentID{"x"}) {
		t.Fatalf("new booking result = %+v", res)
	}

	in.ExcludeAppointmentID = " x "
	res, err = svc.Check(context.Background(), in)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !res.Accepted || res.Slot != "11:00" || res.NextSlot != "12:00" {
		t.Fatalf("edit preview result = %+v", res)
	}
	if res.Request.ExcludeAppointmentID != "x" {
		t.Fatalf("exclude id = %q", res.Request.ExcludeAppointmentID)
	}
}

func TestServiceCheck_EditPreviewStillBlockedByOthers(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(existing("x", "10:00", true), existing("y", "12:00", false)),
	}, nil)

	res, err := svc.Check(context.Background(), BookingInput{
		Date: testDay, Time: "11:00", Extended: true, PatientRUT: testRUT, ExcludeAppointmentID: "x",
	})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Accepted || res.Reason != availability.NextSlotOccupied || !reflect.DeepEqual(res.ConflictsWith, []domain.AppointmentID{"y"}) {
		t.Fatalf("result = %+v", res)
	}
}

func TestServiceBook_ValidationErrorType(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, nil)

	tests := []struct {
		name string
		in   BookingInput
		want string
	}{
		{name: "missing fecha", in: BookingInput{Time: "10:00", PatientRUT: testRUT}, want: "fecha is required"},
		{name: "bad fecha", in: BookingInput{Date: "10-06-2024", Time: "10:00", PatientRUT: testRUT}, want: "invalid fecha"},
		{name: "missing hora", in: BookingInput{Date: testDay, PatientRUT: testRUT}, want: "hora is required"},
		{name: "bad duration", in: BookingInput{Date: testDay, Time: "10:00", DurationMinutes: 90, PatientRUT: testRUT}, want: "duracion_cita must be 60 or 120"},
		{name: "bad kind", in: BookingInput{Date: testDay, Time: "10:00", Kind: "spa", PatientRUT: testRUT}, want: "invalid tipo_cita"},
		{name: "bad estado", in: BookingInput{Date: testDay, Time: "10:00", Status: "pendiente", PatientRUT: testRUT}, want: "invalid estado"},
		{name: "missing rut", in: BookingInput{Date: testDay, Time: "10:00"}, want: "paciente_rut is required"},
		{name: "bad rut", in: BookingInput{Date: testDay, Time: "10:00", PatientRUT: "12.345.678-9"}, want: "invalid paciente_rut"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T (%v), want *ValidationError", err, err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestServiceBook_UnknownPatient(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeDirectory{
		patientFn: func(ctx context.Context, rut string) (domain.Patient, error) {
			return domain.Patient{}, store.ErrNotFound
		},
	})
	_, err := svc.Book(context.Background(), BookingInput{Date: testDay, Time: "10:00", PatientRUT: testRUT})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Error() != "unknown paciente_rut" {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceBook_AcceptedWritesNormalizedAppointment(t *testing.T) {
	var got domain.Appointment
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(existing("a", "10:00", false)),
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			got = appt
			appt.ID = "new"
			return appt, nil
		},
	}, knownPatient())

	res, err := svc.Book(context.Background(), BookingInput{
		Date:            "2024-06-10T00:00:00",
		Time:            "3:00 p.m.",
		DurationMinutes: 120,
		PatientRUT:      testRUT,
		Kind:            "Manicura",
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if !res.Accepted || res.Appointment.ID != "new" {
		t.Fatalf("result = %+v", res)
	}
	want := domain.Appointment{
		Date:          testDay,
		Time:          "15:00",
		Extended:      true,
		PatientID:     "123456785",
		TreatmentKind: "general",
		Kind:          domain.KindManicure,
		Status:        domain.StatusReserved,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("written = %+v\nwant %+v", got, want)
	}
}

func TestServiceBook_RejectionIsResultNotError(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(existing("a", "10:00", true)),
	}, knownPatient())

	res, err := svc.Book(context.Background(), BookingInput{Date: testDay, Time: "11:00", PatientRUT: testRUT})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Accepted || res.Validation.Reason != availability.SlotOccupied {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Validation.Alternatives) == 0 || res.Validation.Alternatives[0] != "12:00" {
		t.Fatalf("alternatives = %v", res.Validation.Alternatives)
	}
}

func TestServiceBook_IdempotencyKeyDeterministicID(t *testing.T) {
	var ids []domain.AppointmentID
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(),
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			ids = append(ids, appt.ID)
			return appt, nil
		},
	}, nil)

	in := BookingInput{Date: testDay, Time: "10:00", PatientRUT: testRUT, IdempotencyKey: "k1"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Book(context.Background(), in); err != nil {
			t.Fatalf("Book error: %v", err)
		}
	}
	want := domain.AppointmentID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("podoclinic:create_appointment:k1")).String())
	if ids[0] != want || ids[1] != want {
		t.Fatalf("ids = %v, want %s", ids, want)
	}
}

func TestServiceBook_ReplayReachesStore(t *testing.T) {
	id := domain.AppointmentID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("podoclinic:create_appointment:k1")).String())
	prior := existing(string(id), "10:00", false)
	created := false
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(prior),
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			created = true
			return prior, nil
		},
	}, nil)

	res, err := svc.Book(context.Background(), BookingInput{Date: testDay, Time: "10:00", PatientRUT: testRUT, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if !created || !res.Accepted || res.Appointment.ID != id {
		t.Fatalf("result = %+v, created = %v", res, created)
	}
}

func TestServiceBook_StoreConflictIsStaleRejection(t *testing.T) {
	calls := 0
	svc := newTestService(t, &fakeStore{
		listByDateFn: func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return []domain.Appointment{existing("racer", "10:00", false)}, nil
		},
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, &store.SlotConflictError{Reason: "slot_occupied", ConflictsWith: []domain.AppointmentID{"racer"}}
		},
	}, nil)

	res, err := svc.Book(context.Background(), BookingInput{Date: testDay, Time: "10:00", PatientRUT: testRUT})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if res.Accepted || !res.Stale || res.Validation.Reason != availability.SlotOccupied {
		t.Fatalf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.Validation.ConflictsWith, []domain.AppointmentID{"racer"}) {
		t.Fatalf("conflicts = %v", res.Validation.ConflictsWith)
	}
	if len(res.Validation.Alternatives) == 0 || res.Validation.Alternatives[0] != "11:00" {
		t.Fatalf("alternatives = %v", res.Validation.Alternatives)
	}
}

func TestServiceBook_StoreFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(t, &fakeStore{
		listByDateFn: dayOf(),
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, boom
		},
	}, nil)
	if _, err := svc.Book(context.Background(), BookingInput{Date: testDay, Time: "10:00", PatientRUT: testRUT}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceReschedule_OwnSlotsDoNotBlock(t *testing.T) {
	current := existing("x", "10:00", true)
	var written domain.Appointment
	svc := newTestService(t, &fakeStore{
		getFn: func(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
			return current, nil
		},
		listByDateFn: dayOf(current, existing("y", "13:00", false)),
		updateFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			written = appt
			return appt, nil
		},
	}, nil)

	res, err := svc.Reschedule(context.Background(), "x", BookingInput{Time: "11:00", Extended: true})
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("rejected: %+v", res.Validation)
	}
	if written.ID != "x" || written.Time != "11:00" || !written.Extended || written.PatientID != "123456785" {
		t.Fatalf("written = %+v", written)
	}

	res, err = svc.Reschedule(context.Background(), "x", BookingInput{Time: "12:00", Extended: true})
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if res.Accepted || res.Validation.Reason != availability.NextSlotOccupied {
		t.Fatalf("result = %+v", res.Validation)
	}
}

func TestServiceReschedule_KeepsDurationWhenOnlyDateChanges(t *testing.T) {
	current := existing("x", "10:00", true)
	var written domain.Appointment
	svc := newTestService(t, &fakeStore{
		getFn: func(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
			return current, nil
		},
		listByDateFn: dayOf(),
		updateFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			written = appt
			return appt, nil
		},
	}, nil)

	if _, err := svc.Reschedule(context.Background(), "x", BookingInput{Date: "2024-06-11"}); err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if written.Date != "2024-06-11" || written.Time != "10:00" || !written.Extended {
		t.Fatalf("written = %+v", written)
	}
}

func TestServiceReschedule_TerminalAppointment(t *testing.T) {
	current := existing("x", "10:00", false)
	current.Status = domain.StatusCompleted
	svc := newTestService(t, &fakeStore{
		getFn: func(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
			return current, nil
		},
	}, nil)

	_, err := svc.Reschedule(context.Background(), "x", BookingInput{Time: "11:00"})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestServiceReschedule_NotFound(t *testing.T) {
	svc := newTestService(t, &fakeStore{
		getFn: func(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}, nil)
	if _, err := svc.Reschedule(context.Background(), "nope", BookingInput{Time: "11:00"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceSetStatus(t *testing.T) {
	var got domain.Status
	svc := newTestService(t, &fakeStore{
		setStatusFn: func(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error) {
			got = status
			return domain.Appointment{ID: id, Status: status}, nil
		},
	}, nil)

	if _, err := svc.SetStatus(context.Background(), "x", "Cancelled"); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if got != domain.StatusCancelled {
		t.Fatalf("status = %s", got)
	}

	_, err := svc.SetStatus(context.Background(), "x", "lost")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestServiceList_FallsBackToFullListing(t *testing.T) {
	other := existing("b", "10:00", false)
	other.Date = "2024-06-11"
	svc := newTestService(t, &fakeStore{
		listByDateFn: func(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
			return nil, errors.New("endpoint down")
		},
		listAllFn: func(ctx context.Context) ([]domain.Appointment, error) {
			return []domain.Appointment{existing("a", "09:00", false), other}, nil
		},
	}, nil)

	got, err := svc.List(context.Background(), testDay)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("List = %+v", got)
	}
}
