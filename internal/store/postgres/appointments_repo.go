package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"podoclinic/backend/internal/availability"
	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

const (
	slotIndexName = "citas_slot_active_key"
	citasPKeyName = "citas_pkey"
)

// AppointmentRepo is the Postgres appointment store. Every write takes a
// per-day advisory lock and re-runs the availability engine on the locked
// snapshot before touching the table.
type AppointmentRepo struct {
	db     *bun.DB
	engine *availability.Engine
	log    *slog.Logger
}

func NewAppointmentRepo(db *bun.DB, engine *availability.Engine, log *slog.Logger) *AppointmentRepo {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentRepo{db: db, engine: engine, log: log.With(slog.String("component", "postgres_store"))}
}

type dayTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) ListByDate(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	return listByDate(ctx, r.db, date)
}

func (r *AppointmentRepo) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("fecha ASC, hora ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	date, err := domain.ParseDate(appt.Date)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = r.InDayTransaction(ctx, []domain.Date{date}, func(ctx context.Context, tx store.DayTx) error {
		if appt.ID != "" {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		if err := r.checkSlot(ctx, tx, date, appt); err != nil {
			return err
		}
		a, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	current, err := r.Get(ctx, appt.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	date, err := domain.ParseDate(appt.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	dates := []domain.Date{date}
	if oldDate, err := current.Day(); err == nil && oldDate != date {
		dates = append(dates, oldDate)
	}

	var out domain.Appointment
	err = r.InDayTransaction(ctx, dates, func(ctx context.Context, tx store.DayTx) error {
		existing, err := tx.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if err := checkTransition(existing.Status, appt.Status); err != nil {
			return err
		}
		if appt.Status.Occupies() {
			if err := r.checkSlot(ctx, tx, date, appt); err != nil {
				return err
			}
		}
		a, err := tx.UpdateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) SetStatus(ctx context.Context, id domain.AppointmentID, status domain.Status) (domain.Appointment, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	date, err := current.Day()
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = r.InDayTransaction(ctx, []domain.Date{date}, func(ctx context.Context, tx store.DayTx) error {
		existing, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(existing.Status, status); err != nil {
			return err
		}
		existing.Status = status
		a, err := tx.UpdateAppointment(ctx, existing)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// InDayTransaction runs fn in a transaction holding the advisory locks of
// every given day. Locks are taken in date order.
func (r *AppointmentRepo) InDayTransaction(ctx context.Context, dates []domain.Date, fn func(ctx context.Context, tx store.DayTx) error) error {
	ordered := lockOrder(dates)
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, d := range ordered {
			if err := lockDay(ctx, tx, d); err != nil {
				return err
			}
		}
		return fn(ctx, dayTx{tx: tx})
	})
}

func lockOrder(dates []domain.Date) []domain.Date {
	seen := make(map[domain.Date]bool, len(dates))
	out := make([]domain.Date, 0, len(dates))
	for _, d := range dates {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lockDay(ctx context.Context, tx bun.Tx, date domain.Date) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "citas:"+date.String()).Exec(ctx)
	return err
}

// checkSlot is the authoritative occupancy check, run on the snapshot read
// under the day lock.
func (r *AppointmentRepo) checkSlot(ctx context.Context, tx store.DayTx, date domain.Date, appt domain.Appointment) error {
	rows, err := tx.ListAppointments(ctx, date)
	if err != nil {
		return err
	}
	occ := r.engine.ResolveOccupancy(rows, date, appt.ID)
	res := r.engine.Validate(domain.BookingRequest{
		Date:                 appt.Date,
		Time:                 appt.Time,
		Extended:             appt.Extended,
		PatientID:            appt.PatientID,
		TreatmentKind:        appt.TreatmentKind,
		Kind:                 appt.Kind,
		Status:               appt.Status,
		ExcludeAppointmentID: appt.ID,
	}, occ)
	if res.Accepted {
		return nil
	}
	r.log.InfoContext(ctx, "write rejected by slot check",
		slog.String("date", date.String()),
		slog.String("hora", appt.Time),
		slog.String("reason", string(res.Reason)),
	)
	return &store.SlotConflictError{Reason: string(res.Reason), ConflictsWith: res.ConflictsWith}
}

func checkTransition(from, to domain.Status) error {
	current, err := domain.ParseStatus(string(from))
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, current, to)
	}
	return nil
}

// sameBooking reports whether a replayed create carries the same booking as
// the stored row.
func sameBooking(existing, appt domain.Appointment) bool {
	return existing.Date == appt.Date &&
		existing.Time == appt.Time &&
		existing.Extended == appt.Extended &&
		existing.PatientID == appt.PatientID &&
		existing.TreatmentKind == appt.TreatmentKind &&
		existing.Kind == appt.Kind
}

func (t dayTx) ListAppointments(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	return listByDate(ctx, t.tx, date)
}

func (t dayTx) GetAppointment(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t dayTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (t dayTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("fecha", "hora", "duracion_extendida", "paciente_rut", "tipo_tratamiento", "tipo_cita", "estado", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func listByDate(ctx context.Context, db bun.IDB, date domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("left(fecha, 10) = ?", date.String()).
		OrderExpr("hora ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id domain.AppointmentID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapReadError(err)
	}
	return a, nil
}

// mapReadError treats a missing row and an id that is not a uuid alike.
func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return store.ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == citasPKeyName {
			return store.ErrIdempotencyConflict
		}
		if pgErr.ConstraintName == slotIndexName {
			return &store.SlotConflictError{Reason: string(availability.SlotOccupied)}
		}
		return store.ErrConflict
	case "23503":
		return fmt.Errorf("patient: %w", store.ErrNotFound)
	}
	return err
}
