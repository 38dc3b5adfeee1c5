package postgres

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

func TestEmbeddedMigrations(t *testing.T) {
	sorted := Migrations.Sorted()
	if len(sorted) == 0 {
		t.Fatalf("no migrations discovered")
	}
	first := sorted[0]
	if first.Name != "00001" || first.Comment != "citas" {
		t.Fatalf("first migration = %s_%s", first.Name, first.Comment)
	}
	if first.Up == nil || first.Down == nil {
		t.Fatalf("first migration must have both up and down steps")
	}
}

func TestCitasMigrationCreatesSlotIndex(t *testing.T) {
	up, err := fs.ReadFile(migrationFS, "migrations/00001_citas.tx.up.sql")
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	if !strings.Contains(string(up), slotIndexName) {
		t.Fatalf("up migration does not create %s", slotIndexName)
	}
	if strings.Contains(string(up), "DROP TABLE") {
		t.Fatalf("up migration drops tables")
	}

	down, err := fs.ReadFile(migrationFS, "migrations/00001_citas.tx.down.sql")
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE IF EXISTS citas") {
		t.Fatalf("down migration = %q", down)
	}
}

func TestLockOrder(t *testing.T) {
	got := lockOrder([]domain.Date{"2024-06-11", "2024-06-10", "2024-06-11"})
	want := []domain.Date{"2024-06-10", "2024-06-11"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lockOrder = %v, want %v", got, want)
	}
}

func TestCheckTransition(t *testing.T) {
	if err := checkTransition(domain.StatusReserved, domain.StatusConfirmed); err != nil {
		t.Fatalf("reservada -> confirmada: %v", err)
	}
	if err := checkTransition(domain.StatusCancelled, domain.StatusConfirmed); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("cancelada -> confirmada err = %v", err)
	}
	if err := checkTransition("", domain.StatusConfirmed); err != nil {
		t.Fatalf("empty status should read as reservada: %v", err)
	}
}

func TestSameBooking(t *testing.T) {
	a := domain.Appointment{Date: "2024-06-10", Time: "10:00", PatientID: "123456785", Kind: domain.KindPodiatry}
	b := a
	b.Status = domain.StatusConfirmed
	if !sameBooking(a, b) {
		t.Fatalf("status should not affect replay equality")
	}
	b.Extended = true
	if sameBooking(a, b) {
		t.Fatalf("extended flag must affect replay equality")
	}
}

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "slot index", err: &pgconn.PgError{Code: "23505", ConstraintName: slotIndexName}, want: store.ErrConflict},
		{name: "primary key", err: &pgconn.PgError{Code: "23505", ConstraintName: citasPKeyName}, want: store.ErrIdempotencyConflict},
		{name: "unknown patient", err: &pgconn.PgError{Code: "23503"}, want: store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapWriteError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapWriteError = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := mapWriteError(other); got != other {
		t.Fatalf("non-pg error changed: %v", got)
	}
}
