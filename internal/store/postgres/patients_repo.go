package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"podoclinic/backend/internal/domain"
	"podoclinic/backend/internal/store"
)

// PatientDirectory serves patient lookups from the pacientes table.
type PatientDirectory struct {
	db *bun.DB
}

func NewPatientDirectory(db *bun.DB) *PatientDirectory {
	return &PatientDirectory{db: db}
}

func (d *PatientDirectory) Patient(ctx context.Context, rut string) (domain.Patient, error) {
	key := domain.NormalizeRUT(rut)
	if key == "" {
		return domain.Patient{}, store.ErrNotFound
	}
	var p domain.Patient
	err := d.db.NewSelect().
		Model(&p).
		Where("rut = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Patient{}, mapReadError(err)
	}
	return p, nil
}

// SavePatient inserts or refreshes a directory record keyed by its
// normalized RUT.
func (d *PatientDirectory) SavePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	p.RUT = domain.NormalizeRUT(p.RUT)
	_, err := d.db.NewInsert().
		Model(&p).
		On("CONFLICT (rut) DO UPDATE").
		Set("nombre = EXCLUDED.nombre").
		Set("telefono = EXCLUDED.telefono").
		Set("correo = EXCLUDED.correo").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Patient{}, err
	}
	return p, nil
}
