package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// BookingRepo is the MySQL Booking Store.  Appointments and queue tickets
// share the appointments table and are told apart by the kind column.
// Dates are DATE columns passed as YYYY-MM-DD strings, start times are
// TIME columns.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying database handle.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `a.id, a.kind, a.clinic_id, c.name, a.doctor_id, d.full_name, d.cabinet_number,
       a.service_id, s.name, a.patient_full_name, a.patient_phone, a.date, a.time_start,
       a.status, a.number_coupon, a.comment, a.created_by, a.source, a.created_at, a.updated_at`

const bookingFrom = `FROM appointments a
JOIN clinics c ON c.id = a.clinic_id
JOIN doctors d ON d.id = a.doctor_id
LEFT JOIN services s ON s.id = a.service_id`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b           model.Booking
		serviceID   sql.NullInt64
		serviceName sql.NullString
		ticket      sql.NullString
		comment     sql.NullString
		source      sql.NullString
		cabinet     sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.Kind, &b.ClinicID, &b.ClinicName, &b.DoctorID, &b.DoctorName, &cabinet,
		&serviceID, &serviceName, &b.PatientFullName, &b.PatientPhone, &b.Date, &b.TimeStart,
		&b.Status, &ticket, &comment, &b.CreatedBy, &source, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.DoctorCabinet = cabinet.String
	if serviceID.Valid {
		id := uint64(serviceID.Int64)
		b.ServiceID = &id
	}
	b.ServiceName = nullString(serviceName)
	b.TicketNumber = nullString(ticket)
	b.Comment = nullString(comment)
	b.Source = nullString(source)
	return &b, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// inactiveClause renders "status NOT IN (?,...)" for a booking kind and
// returns the matching arguments.
func inactiveClause(column string, kind model.BookingKind) (string, []interface{}) {
	set := model.InactiveScheduledStatuses
	if kind == model.KindQueue {
		set = model.InactiveQueueStatuses
	}
	return statusClause(column, "NOT IN", set)
}

func statusClause(column, op string, set []model.BookingStatus) (string, []interface{}) {
	marks := make([]string, len(set))
	args := make([]interface{}, len(set))
	for i, s := range set {
		marks[i] = "?"
		args[i] = string(s)
	}
	return fmt.Sprintf("%s %s (%s)", column, op, strings.Join(marks, ",")), args
}

func dateArg(t time.Time) string { return t.Format(model.DateLayout) }

// WithTx runs fn inside a transaction with the committed-flag pattern: the
// deferred rollback is a no-op once Commit succeeded.
func (r *BookingRepo) WithTx(ctx context.Context, fn func(tx BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	committed = true
	return nil
}

// ActiveStartsInRange implements BookingStore.
func (r *BookingRepo) ActiveStartsInRange(ctx context.Context, doctorID uint64, from, to time.Time) (map[string][]timewindow.Clock, error) {
	clause, statusArgs := inactiveClause("status", model.KindScheduled)
	q := `SELECT date, time_start FROM appointments
WHERE doctor_id = ? AND kind = ? AND date BETWEEN ? AND ? AND ` + clause + `
ORDER BY date, time_start`
	args := append([]interface{}{doctorID, string(model.KindScheduled), dateArg(from), dateArg(to)}, statusArgs...)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]timewindow.Clock{}
	for rows.Next() {
		var d time.Time
		var c timewindow.Clock
		if err := rows.Scan(&d, &c); err != nil {
			return nil, err
		}
		key := dateArg(d)
		out[key] = append(out[key], c)
	}
	return out, rows.Err()
}

// ListByClinicDay implements BookingStore.
func (r *BookingRepo) ListByClinicDay(ctx context.Context, clinicID uint64, day time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` ` + bookingFrom + `
WHERE a.clinic_id = ? AND a.date = ?
ORDER BY a.time_start, a.id`
	rows, err := r.db.QueryContext(ctx, q, clinicID, dateArg(day))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListByClinicSince implements BookingStore.
func (r *BookingRepo) ListByClinicSince(ctx context.Context, clinicID uint64, since time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` ` + bookingFrom + `
WHERE a.clinic_id = ? AND a.date >= ?
ORDER BY a.date DESC, a.time_start DESC, a.id DESC`
	rows, err := r.db.QueryContext(ctx, q, clinicID, dateArg(since))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListByDoctor implements BookingStore.
func (r *BookingRepo) ListByDoctor(ctx context.Context, doctorID uint64) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` ` + bookingFrom + `
WHERE a.doctor_id = ?
ORDER BY a.date DESC, a.time_start DESC, a.id DESC`
	rows, err := r.db.QueryContext(ctx, q, doctorID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// GetByID implements BookingStore.  A missing row yields ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

func getBooking(ctx context.Context, q queryer, id uint64, forUpdate bool) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` ` + bookingFrom + ` WHERE a.id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// bookingTx implements BookingTx on a *sql.Tx.
type bookingTx struct {
	tx *sql.Tx
}

func (t *bookingTx) LockDoctor(ctx context.Context, doctorID uint64) error {
	var id uint64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM doctors WHERE id = ? FOR UPDATE`, doctorID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (t *bookingTx) LockClinic(ctx context.Context, clinicID uint64) error {
	var id uint64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM clinics WHERE id = ? FOR UPDATE`, clinicID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (t *bookingTx) ActiveStartsOnDate(ctx context.Context, doctorID uint64, date time.Time, excludeID uint64) ([]timewindow.Clock, error) {
	clause, statusArgs := inactiveClause("status", model.KindScheduled)
	q := `SELECT time_start FROM appointments
WHERE doctor_id = ? AND kind = ? AND date = ? AND id <> ? AND ` + clause + `
ORDER BY time_start`
	args := append([]interface{}{doctorID, string(model.KindScheduled), dateArg(date), excludeID}, statusArgs...)
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []timewindow.Clock{}
	for rows.Next() {
		var c timewindow.Clock
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Insert writes a new booking and reloads it so the generated id, the
// timestamps and the joined names are populated.
func (t *bookingTx) Insert(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO appointments
(kind, clinic_id, doctor_id, service_id, patient_full_name, patient_phone, date, time_start,
 status, number_coupon, comment, created_by, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q,
		string(b.Kind), b.ClinicID, b.DoctorID, b.ServiceID, b.PatientFullName, b.PatientPhone,
		dateArg(b.Date), b.TimeStart, string(b.Status), b.TicketNumber, b.Comment,
		string(b.CreatedBy), b.Source,
	)
	if err != nil {
		return mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := getBooking(ctx, t.tx, uint64(id), false)
	if err != nil {
		return err
	}
	*b = *fresh
	return nil
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

// Update writes the mutable fields of b and reloads updated_at.
func (t *bookingTx) Update(ctx context.Context, b *model.Booking) error {
	const q = `UPDATE appointments
SET patient_full_name = ?, patient_phone = ?, date = ?, time_start = ?, status = ?, comment = ?
WHERE id = ?`
	_, err := t.tx.ExecContext(ctx, q,
		b.PatientFullName, b.PatientPhone, dateArg(b.Date), b.TimeStart, string(b.Status), b.Comment, b.ID,
	)
	if err != nil {
		return mapWriteError(err)
	}
	fresh, err := getBooking(ctx, t.tx, b.ID, false)
	if err != nil {
		return err
	}
	*b = *fresh
	return nil
}

func (t *bookingTx) CountTicketsWithPrefix(ctx context.Context, clinicID uint64, date time.Time, prefix string) (int, error) {
	// Ticket letters are case sensitive: "a01" must not count towards "A".
	const q = `SELECT COUNT(*) FROM appointments
WHERE clinic_id = ? AND date = ? AND number_coupon LIKE BINARY ?`
	var n int
	err := t.tx.QueryRowContext(ctx, q, clinicID, dateArg(date), likePrefix(prefix)).Scan(&n)
	return n, err
}

func (t *bookingTx) HasWaitingTicket(ctx context.Context, doctorID uint64, date time.Time) (bool, error) {
	clause, statusArgs := statusClause("status", "IN", model.WaitingStatuses)
	q := `SELECT EXISTS(SELECT 1 FROM appointments WHERE doctor_id = ? AND date = ? AND ` + clause + `)`
	args := append([]interface{}{doctorID, dateArg(date)}, statusArgs...)
	var exists bool
	err := t.tx.QueryRowContext(ctx, q, args...).Scan(&exists)
	return exists, err
}

// likePrefix escapes LIKE wildcards in p and appends %.
func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "%"
}
