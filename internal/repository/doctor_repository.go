package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
)

// DoctorRepo reads the doctors table.  Schedules are stored in three JSON
// columns (working_days, working_hours, lunch_time) keyed by weekday.
type DoctorRepo struct {
	db *sql.DB
}

// NewDoctorRepo constructs a DoctorRepo given a DB handle.
func NewDoctorRepo(db *sql.DB) *DoctorRepo { return &DoctorRepo{db: db} }

const doctorColumns = `d.id, d.clinic_id, d.user_id, d.full_name, d.specialty, d.cabinet_number,
       d.working_days, d.working_hours, d.lunch_time, d.default_duration,
       d.is_active, d.available_for_booking, d.created_at, d.updated_at`

func scanDoctor(row rowScanner, extra ...interface{}) (*model.Doctor, error) {
	var (
		d       model.Doctor
		userID  sql.NullInt64
		cabinet sql.NullString
		spec    sql.NullString
	)
	dest := []interface{}{
		&d.ID, &d.ClinicID, &userID, &d.FullName, &spec, &cabinet,
		&d.Schedule.WorkingDays, &d.Schedule.WorkingHours, &d.Schedule.LunchTime, &d.DefaultDuration,
		&d.IsActive, &d.AvailableForBooking, &d.CreatedAt, &d.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := uint64(userID.Int64)
		d.UserID = &id
	}
	d.CabinetNumber = cabinet.String
	d.Specialty = spec.String
	return &d, nil
}

func (r *DoctorRepo) getOne(ctx context.Context, q string, args ...interface{}) (*model.Doctor, error) {
	d, err := scanDoctor(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDoctor returns a doctor by id or ErrNotFound.
func (r *DoctorRepo) GetDoctor(ctx context.Context, id uint64) (*model.Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorColumns+` FROM doctors d WHERE d.id = ?`, id)
}

// GetDoctorByUser returns the doctor linked to a login.
func (r *DoctorRepo) GetDoctorByUser(ctx context.Context, userID uint64) (*model.Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorColumns+` FROM doctors d WHERE d.user_id = ? LIMIT 1`, userID)
}

// ListClinicDoctors returns the active doctors of a clinic ordered by id.
func (r *DoctorRepo) ListClinicDoctors(ctx context.Context, clinicID uint64) ([]model.Doctor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+doctorColumns+` FROM doctors d WHERE d.clinic_id = ? AND d.is_active = 1 ORDER BY d.id`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListDoctorsForService implements DoctorStore.
func (r *DoctorRepo) ListDoctorsForService(ctx context.Context, serviceID uint64, city string) ([]DoctorWithClinic, error) {
	q := `SELECT ` + doctorColumns + `, c.name
FROM doctors d
JOIN doctor_services ds ON ds.doctor_id = d.id
JOIN clinics c ON c.id = d.clinic_id
WHERE ds.service_id = ? AND d.is_active = 1 AND d.available_for_booking = 1
  AND c.is_active = 1 AND c.is_online_booking = 1`
	args := []interface{}{serviceID}
	if city != "" {
		q += ` AND c.city = ?`
		args = append(args, city)
	}
	q += ` ORDER BY d.id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DoctorWithClinic{}
	for rows.Next() {
		var name string
		d, err := scanDoctor(rows, &name)
		if err != nil {
			return nil, err
		}
		out = append(out, DoctorWithClinic{Doctor: *d, ClinicName: name})
	}
	return out, rows.Err()
}

// LeastLoadedDoctor implements DoctorStore.  Bookings count toward the load
// while they are active for their own kind.
func (r *DoctorRepo) LeastLoadedDoctor(ctx context.Context, clinicID, serviceID uint64, date time.Time) (*model.Doctor, error) {
	schedClause, schedArgs := inactiveClause("a.status", model.KindScheduled)
	queueClause, queueArgs := inactiveClause("a.status", model.KindQueue)
	q := `SELECT ` + doctorColumns + `,
       (SELECT COUNT(*) FROM appointments a
         WHERE a.doctor_id = d.id AND a.date = ?
           AND ((a.kind = 'scheduled' AND ` + schedClause + `) OR (a.kind = 'queue' AND ` + queueClause + `))) AS active_count
FROM doctors d
JOIN doctor_services ds ON ds.doctor_id = d.id AND ds.service_id = ?
WHERE d.clinic_id = ? AND d.is_active = 1
ORDER BY active_count ASC, d.id ASC
LIMIT 1`
	args := []interface{}{dateArg(date)}
	args = append(args, schedArgs...)
	args = append(args, queueArgs...)
	args = append(args, serviceID, clinicID)
	var load int
	d, err := scanDoctor(r.db.QueryRowContext(ctx, q, args...), &load)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// FirstServiceID implements DoctorStore.
func (r *DoctorRepo) FirstServiceID(ctx context.Context, doctorID uint64) (*uint64, error) {
	var id uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT service_id FROM doctor_services WHERE doctor_id = ? ORDER BY service_id LIMIT 1`, doctorID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
