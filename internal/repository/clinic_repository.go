package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
)

// ClinicRepo provides read access to clinics and the clinic_admins link
// table that records which users administer which clinic.
type ClinicRepo struct {
	db *sql.DB
}

// NewClinicRepo creates a new ClinicRepo.
func NewClinicRepo(db *sql.DB) *ClinicRepo { return &ClinicRepo{db: db} }

// GetClinic fetches a clinic by id.  ErrNotFound when absent.
func (r *ClinicRepo) GetClinic(ctx context.Context, id uint64) (*model.Clinic, error) {
	const q = `SELECT id, name, city, address, is_active, is_online_booking, is_electronic_queue,
       is_booking_for_services, is_booking_for_doctors, online_queue_only, created_at, updated_at
FROM clinics WHERE id = ?`
	var c model.Clinic
	var address sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.City, &address, &c.IsActive, &c.IsOnlineBooking, &c.IsElectronicQueue,
		&c.IsBookingForServices, &c.IsBookingForDoctors, &c.OnlineQueueOnly, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Address = address.String
	return &c, nil
}

// IsClinicAdmin reports whether userID is listed as an administrator of
// clinicID.
func (r *ClinicRepo) IsClinicAdmin(ctx context.Context, clinicID, userID uint64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM clinic_admins WHERE clinic_id = ? AND user_id = ?)`,
		clinicID, userID).Scan(&ok)
	return ok, err
}

// AdminTelegramIDs returns the non-empty tg ids of the clinic's
// administrators.
func (r *ClinicRepo) AdminTelegramIDs(ctx context.Context, clinicID uint64) ([]int64, error) {
	return queryInt64s(ctx, r.db,
		`SELECT u.tg_id FROM clinic_admins ca JOIN users u ON u.id = ca.user_id
WHERE ca.clinic_id = ? AND u.tg_id IS NOT NULL AND u.tg_id <> 0 ORDER BY u.id`, clinicID)
}

// ListBookingCities implements ClinicStore.
func (r *ClinicRepo) ListBookingCities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT city FROM clinics WHERE is_active = 1 AND is_online_booking = 1 AND city <> '' ORDER BY city`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

func queryInt64s(ctx context.Context, q queryer, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
