package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/availability"
	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/queue"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// ClinicListDays is how far back the clinic booking list reaches.
const ClinicListDays = 7

// DoctorAllowedStatuses is the set a doctor may move their own bookings
// into.  Administrative outcomes (rejected, canceled, pending) stay with
// the clinic administrators.
var DoctorAllowedStatuses = map[model.BookingStatus]bool{
	model.StatusConfirmed: true,
	model.StatusInvited:   true,
	model.StatusFinished:  true,
	model.StatusNoShow:    true,
	model.StatusUrgent:    true,
	model.StatusMissed:    true,
}

// Deps groups the collaborators shared by the booking and queue services.
type Deps struct {
	Bookings repository.BookingStore
	Clinics  repository.ClinicStore
	Doctors  repository.DoctorStore
	Services repository.ServiceStore
	Users    repository.UserStore
	Calc     *availability.Calculator
	Cache    SlotCache // optional
	Notify   Notifier
	// Superadmins receive every appointment.created notification.
	Superadmins []int64
	Log         zerolog.Logger
}

func (d Deps) notifier() Notifier {
	if d.Notify == nil {
		return NopNotifier{}
	}
	return d.Notify
}

// BookingService runs the guarded booking transaction and the status
// updates of existing bookings.
type BookingService struct {
	Deps
}

func NewBookingService(d Deps) *BookingService { return &BookingService{Deps: d} }

// CreateBookingInput is the patient's booking request.  Date is
// YYYY-MM-DD and Time is HH:MM in the clinic's location.
type CreateBookingInput struct {
	DoctorID        uint64
	ServiceID       *uint64
	PatientFullName string
	PatientPhone    string
	Date            string
	Time            string
}

// CreateBooking validates the request, then checks and inserts the booking
// in one transaction holding the doctor's row lock.  A failed guard check
// or a lost race on the unique slot index is a *ConflictError.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	name := strings.TrimSpace(in.PatientFullName)
	phone := strings.TrimSpace(in.PatientPhone)
	if name == "" {
		return nil, invalid("patient_full_name", "is required")
	}
	if phone == "" {
		return nil, invalid("patient_phone", "is required")
	}
	if in.DoctorID == 0 {
		return nil, invalid("doctor", "is required")
	}
	date, start, err := s.parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	doctor, err := s.Doctors.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive || !doctor.AvailableForBooking {
		return nil, ErrNotFound
	}
	clinic, err := s.Clinics.GetClinic(ctx, doctor.ClinicID)
	if err != nil {
		return nil, err
	}
	if !clinic.IsActive || !clinic.IsOnlineBooking {
		return nil, invalid("doctor", "clinic does not accept online bookings")
	}
	var svc *model.Service
	if in.ServiceID != nil && *in.ServiceID != 0 {
		if svc, err = s.Services.GetService(ctx, *in.ServiceID); err != nil {
			return nil, err
		}
	}
	duration := availability.ResolveDuration(*doctor, svc)

	b := &model.Booking{
		Kind:            model.KindScheduled,
		ClinicID:        doctor.ClinicID,
		DoctorID:        doctor.ID,
		PatientFullName: name,
		PatientPhone:    phone,
		Date:            date,
		TimeStart:       start,
		Status:          model.StatusPending,
		CreatedBy:       model.CreatedByPatient,
	}
	if svc != nil {
		id := svc.ID
		b.ServiceID = &id
	}

	err = s.Bookings.WithTx(ctx, func(tx repository.BookingTx) error {
		if err := tx.LockDoctor(ctx, doctor.ID); err != nil {
			return err
		}
		busy, err := tx.ActiveStartsOnDate(ctx, doctor.ID, date, 0)
		if err != nil {
			return err
		}
		if rej := availability.Validate(doctor.Schedule, date, start, duration, busy); rej != nil {
			return &ConflictError{Reason: rej.Reason}
		}
		return tx.Insert(ctx, b)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.Log.Info().Uint64("booking_id", b.ID).Uint64("doctor_id", b.DoctorID).
		Str("date", b.DateString()).Str("time", b.TimeStart.String()).Msg("booking created")

	s.invalidate(ctx, b.DoctorID)
	s.announce(ctx, queue.EventAppointmentCreated, b, true)
	return b, nil
}

// BookingPatch lists the fields an update may change.  nil leaves a field
// as is.
type BookingPatch struct {
	PatientFullName *string
	PatientPhone    *string
	Date            *string
	TimeStart       *string
	Status          *string
	Comment         *string
}

func (p BookingPatch) onlyDoctorFields() bool {
	return p.PatientFullName == nil && p.PatientPhone == nil && p.Date == nil && p.TimeStart == nil
}

// UpdateBooking applies a patch on behalf of actor.  A clinic
// administrator may change any field of the bookings of the clinics they
// administer; a doctor may change status and comment of the bookings
// assigned to them, within DoctorAllowedStatuses.  Moving a scheduled
// booking to another date or time re-runs the guard with the booking
// itself excluded.
func (s *BookingService) UpdateBooking(ctx context.Context, actor model.Actor, id uint64, patch BookingPatch) (*model.Booking, error) {
	switch actor.Role {
	case model.RoleClinicAdmin:
	case model.RoleDoctor:
		if !patch.onlyDoctorFields() {
			return nil, ErrForbidden
		}
		if patch.Status != nil && !DoctorAllowedStatuses[model.BookingStatus(*patch.Status)] {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	if actor.UserID == 0 {
		return nil, ErrUnauthorized
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var doctorOnly *model.Doctor
	if actor.Role == model.RoleDoctor {
		d, err := s.Doctors.GetDoctorByUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		doctorOnly = d
	}

	var (
		updated  *model.Booking
		oldDocID uint64
	)
	err := s.Bookings.WithTx(ctx, func(tx repository.BookingTx) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doctorOnly != nil {
			if b.DoctorID != doctorOnly.ID {
				return ErrNotFound
			}
		} else {
			ok, err := s.Clinics.IsClinicAdmin(ctx, b.ClinicID, actor.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrForbidden
			}
		}
		oldDocID = b.DoctorID
		if err := s.applyPatch(ctx, tx, b, patch); err != nil {
			return err
		}
		if err := tx.Update(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.Log.Info().Uint64("booking_id", updated.ID).Str("status", string(updated.Status)).
		Str("role", actor.Role).Msg("booking updated")

	s.invalidate(ctx, oldDocID)
	s.announce(ctx, queue.EventAppointmentUpdated, updated, false)
	return updated, nil
}

func validatePatch(p BookingPatch) error {
	if p.PatientFullName != nil && strings.TrimSpace(*p.PatientFullName) == "" {
		return invalid("patient_full_name", "must not be empty")
	}
	if p.PatientPhone != nil && strings.TrimSpace(*p.PatientPhone) == "" {
		return invalid("patient_phone", "must not be empty")
	}
	if p.Date != nil {
		if _, err := time.Parse(model.DateLayout, *p.Date); err != nil {
			return invalid("date", "must be YYYY-MM-DD")
		}
	}
	if p.TimeStart != nil {
		if _, err := timewindow.ParseClock(*p.TimeStart); err != nil {
			return invalid("time_start", "must be HH:MM")
		}
	}
	if p.Status != nil && *p.Status == "" {
		return invalid("status", "must not be empty")
	}
	return nil
}

// applyPatch mutates b inside the update transaction.
func (s *BookingService) applyPatch(ctx context.Context, tx repository.BookingTx, b *model.Booking, p BookingPatch) error {
	if p.Status != nil {
		to := model.BookingStatus(*p.Status)
		if !model.ValidStatus(b.Kind, to) {
			return invalid("status", "unknown status %q", to)
		}
		if !model.CanTransition(b.Kind, b.Status, to) {
			return &ConflictError{Reason: fmt.Sprintf("cannot change status from %s to %s", b.Status, to)}
		}
		b.Status = to
	}
	if p.Comment != nil {
		c := *p.Comment
		b.Comment = &c
	}
	if p.PatientFullName != nil {
		b.PatientFullName = strings.TrimSpace(*p.PatientFullName)
	}
	if p.PatientPhone != nil {
		b.PatientPhone = strings.TrimSpace(*p.PatientPhone)
	}
	if p.Date == nil && p.TimeStart == nil {
		return nil
	}

	dateStr, timeStr := b.DateString(), b.TimeStart.String()
	if p.Date != nil {
		dateStr = *p.Date
	}
	if p.TimeStart != nil {
		timeStr = *p.TimeStart
	}
	date, start, err := s.parseSlot(dateStr, timeStr)
	if err != nil {
		return err
	}
	moved := date.Format(model.DateLayout) != b.DateString() || start != b.TimeStart
	b.Date, b.TimeStart = date, start
	if !moved || b.Kind != model.KindScheduled || !b.IsActive() {
		return nil
	}

	doctor, err := s.Doctors.GetDoctor(ctx, b.DoctorID)
	if err != nil {
		return err
	}
	var svc *model.Service
	if b.ServiceID != nil {
		if svc, err = s.Services.GetService(ctx, *b.ServiceID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	if err := tx.LockDoctor(ctx, b.DoctorID); err != nil {
		return err
	}
	busy, err := tx.ActiveStartsOnDate(ctx, b.DoctorID, date, b.ID)
	if err != nil {
		return err
	}
	duration := availability.ResolveDuration(*doctor, svc)
	if rej := availability.Validate(doctor.Schedule, date, start, duration, busy); rej != nil {
		return &ConflictError{Reason: rej.Reason}
	}
	return nil
}

// ListClinicBookings returns the bookings of the last ClinicListDays days
// of a clinic the actor administers, newest first.
func (s *BookingService) ListClinicBookings(ctx context.Context, actor model.Actor, clinicID uint64) ([]model.Booking, error) {
	if err := s.requireClinicStaff(ctx, actor, clinicID); err != nil {
		return nil, err
	}
	since := s.Calc.Today().AddDate(0, 0, -ClinicListDays)
	return s.Bookings.ListByClinicSince(ctx, clinicID, since)
}

// ListDoctorBookings returns the bookings assigned to the calling doctor.
func (s *BookingService) ListDoctorBookings(ctx context.Context, actor model.Actor) ([]model.Booking, error) {
	if actor.Role != model.RoleDoctor {
		return nil, ErrForbidden
	}
	doctor, err := s.Doctors.GetDoctorByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.Bookings.ListByDoctor(ctx, doctor.ID)
}

// QueueSettings returns what the queue admin client needs to register
// walk-ins at an electronic-queue clinic.
func (s *BookingService) QueueSettings(ctx context.Context, actor model.Actor, clinicID uint64) (*model.QueueSettings, error) {
	if err := s.requireClinicStaff(ctx, actor, clinicID); err != nil {
		return nil, err
	}
	clinic, err := s.Clinics.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if !clinic.IsElectronicQueue {
		return nil, invalid("clinic", "electronic queue is not enabled for this clinic")
	}
	services, err := s.Services.ListClinicServices(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	doctors, err := s.Doctors.ListClinicDoctors(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	return &model.QueueSettings{
		ClinicID:             clinic.ID,
		ClinicName:           clinic.Name,
		IsElectronicQueue:    clinic.IsElectronicQueue,
		IsBookingForServices: clinic.IsBookingForServices,
		IsBookingForDoctors:  clinic.IsBookingForDoctors,
		OnlineQueueOnly:      clinic.OnlineQueueOnly,
		Services:             services,
		Doctors:              doctors,
	}, nil
}

// requireClinicStaff admits clinic and queue administrators of clinicID.
// A clinic the actor does not administer is reported as not found.
func (d Deps) requireClinicStaff(ctx context.Context, actor model.Actor, clinicID uint64) error {
	if actor.Role != model.RoleClinicAdmin && actor.Role != model.RoleQueueAdmin {
		return ErrForbidden
	}
	ok, err := d.Clinics.IsClinicAdmin(ctx, clinicID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// parseSlot parses a date and a start time in the clinic's location and
// rejects a slot that has already started.
func (d Deps) parseSlot(dateStr, timeStr string) (time.Time, timewindow.Clock, error) {
	today := d.Calc.Today()
	date, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(dateStr), today.Location())
	if err != nil {
		return time.Time{}, 0, invalid("date", "must be YYYY-MM-DD")
	}
	start, err := timewindow.ParseClock(timeStr)
	if err != nil {
		return time.Time{}, 0, invalid("time_start", "must be HH:MM")
	}
	if date.Before(today) {
		return time.Time{}, 0, invalid("date", "must not be in the past")
	}
	if date.Equal(today) && start < timewindow.FromTime(d.Calc.Current()) {
		return time.Time{}, 0, invalid("time_start", "must not be in the past")
	}
	return date, start, nil
}

func (d Deps) invalidate(ctx context.Context, doctorID uint64) {
	if d.Cache != nil {
		d.Cache.Invalidate(ctx, doctorID)
	}
}

// announce resolves the notification targets of a booking and hands the
// event to the notifier.  Target lookups that fail are logged and
// skipped.
func (d Deps) announce(ctx context.Context, event string, b *model.Booking, withSuperadmins bool) {
	var targets []int64
	if withSuperadmins {
		targets = append(targets, d.Superadmins...)
	}
	admins, err := d.Clinics.AdminTelegramIDs(ctx, b.ClinicID)
	if err != nil {
		d.Log.Warn().Err(err).Uint64("clinic_id", b.ClinicID).Msg("load admin notification targets")
	}
	targets = append(targets, admins...)
	if d.Users != nil {
		patients, err := d.Users.TelegramIDsByPatient(ctx, b.PatientFullName, b.PatientPhone)
		if err != nil {
			d.Log.Warn().Err(err).Uint64("booking_id", b.ID).Msg("load patient notification targets")
		}
		targets = append(targets, patients...)
	}
	d.notifier().Send(ctx, event, targets, bookingData(b))
}

func bookingData(b *model.Booking) map[string]string {
	data := map[string]string{
		queue.DataAppointmentID: strconv.FormatUint(b.ID, 10),
		"clinic":                b.ClinicName,
		"doctor":                b.DoctorName,
		"patient_full_name":     b.PatientFullName,
		"patient_phone":         b.PatientPhone,
		"date":                  b.DateString(),
		"time_start":            b.TimeStart.String(),
		"status":                string(b.Status),
	}
	if b.ServiceName != nil {
		data["service"] = *b.ServiceName
	}
	if b.TicketNumber != nil {
		data["number_coupon"] = *b.TicketNumber
	}
	return data
}

// mapStoreError turns storage level write conflicts into the service
// taxonomy.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateSlot):
		return &ConflictError{Reason: availability.ReasonSlotTaken}
	case errors.Is(err, repository.ErrConflict):
		return &ConflictError{Reason: "booking conflicts with an existing one, retry"}
	}
	return err
}
