package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
)

// ServiceRepo reads services.
type ServiceRepo struct {
	db *sql.DB
}

func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{db: db} }

func scanService(row rowScanner) (*model.Service, error) {
	var s model.Service
	var dur sql.NullInt64
	if err := row.Scan(&s.ID, &s.Name, &dur); err != nil {
		return nil, err
	}
	if dur.Valid {
		v := int(dur.Int64)
		s.DurationMinutes = &v
	}
	return &s, nil
}

// GetService returns a service by id or ErrNotFound.
func (r *ServiceRepo) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	s, err := scanService(r.db.QueryRowContext(ctx, `SELECT id, name, duration_minutes FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListClinicServices returns the distinct services offered by the active
// doctors of a clinic.
func (r *ServiceRepo) ListClinicServices(ctx context.Context, clinicID uint64) ([]model.Service, error) {
	const q = `SELECT DISTINCT s.id, s.name, s.duration_minutes
FROM services s
JOIN doctor_services ds ON ds.service_id = s.id
JOIN doctors d ON d.id = ds.doctor_id
WHERE d.clinic_id = ? AND d.is_active = 1
ORDER BY s.id`
	return r.list(ctx, q, clinicID)
}

// ListBookableServices implements ServiceStore.  It offers the same
// services the doctor search can answer for.
func (r *ServiceRepo) ListBookableServices(ctx context.Context) ([]model.Service, error) {
	const q = `SELECT DISTINCT s.id, s.name, s.duration_minutes
FROM services s
JOIN doctor_services ds ON ds.service_id = s.id
JOIN doctors d ON d.id = ds.doctor_id
JOIN clinics c ON c.id = d.clinic_id
WHERE d.is_active = 1 AND d.available_for_booking = 1
  AND c.is_active = 1 AND c.is_online_booking = 1
ORDER BY s.name, s.id`
	return r.list(ctx, q)
}

func (r *ServiceRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Service, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
