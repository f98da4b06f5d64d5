package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// QueueService registers walk-in patients of electronic-queue clinics.
type QueueService struct {
	Deps
}

func NewQueueService(d Deps) *QueueService { return &QueueService{Deps: d} }

// IssueTicketInput selects who the walk-in is queued for: a named doctor
// or, when DoctorID is nil, the least loaded doctor offering ServiceID.
type IssueTicketInput struct {
	ClinicID        uint64
	DoctorID        *uint64
	ServiceID       *uint64
	PatientFullName string
	PatientPhone    string
}

// IssueTicket registers a walk-in for today at the current minute and
// returns the stored ticket.
//
// The ticket number is the doctor's initial followed by the two digit
// count of the clinic's tickets of the day sharing that initial.  The
// ticket starts invited when the doctor has nobody invited or pending
// and is not at lunch, and pending otherwise.  Numbering runs under the
// clinic's row lock.
func (s *QueueService) IssueTicket(ctx context.Context, actor model.Actor, in IssueTicketInput) (*model.Booking, error) {
	if actor.Role != model.RoleClinicAdmin {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.PatientFullName)
	phone := strings.TrimSpace(in.PatientPhone)
	if name == "" || phone == "" {
		return nil, invalid("patient", "full name and phone are required")
	}
	doctorID, serviceID := deref(in.DoctorID), deref(in.ServiceID)
	if doctorID == 0 && serviceID == 0 {
		return nil, invalid("doctor", "a doctor or a service must be selected")
	}

	ok, err := s.Clinics.IsClinicAdmin(ctx, in.ClinicID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	clinic, err := s.Clinics.GetClinic(ctx, in.ClinicID)
	if err != nil {
		return nil, err
	}
	if !clinic.IsElectronicQueue {
		return nil, ErrForbidden
	}

	today := s.Calc.Today()
	now := timewindow.FromTime(s.Calc.Current())

	// The clinic's booking modes decide which selection is honoured.
	var doctor *model.Doctor
	switch {
	case clinic.IsBookingForDoctors && doctorID != 0:
		doctor, err = s.Doctors.GetDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		if !doctor.IsActive || doctor.ClinicID != clinic.ID {
			return nil, ErrNotFound
		}
	case clinic.IsBookingForServices && serviceID != 0:
		doctor, err = s.Doctors.LeastLoadedDoctor(ctx, clinic.ID, serviceID, today)
		if err != nil {
			return nil, err
		}
	default:
		return nil, invalid("doctor", "selection does not match the clinic's booking mode")
	}

	var svcID *uint64
	if serviceID != 0 {
		svcID = &serviceID
	} else if svcID, err = s.Doctors.FirstServiceID(ctx, doctor.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	kind := model.KindScheduled
	if clinic.OnlineQueueOnly {
		kind = model.KindQueue
	}
	source := model.SourceElectronicQueue
	b := &model.Booking{
		Kind:            kind,
		ClinicID:        clinic.ID,
		DoctorID:        doctor.ID,
		ServiceID:       svcID,
		PatientFullName: name,
		PatientPhone:    phone,
		Date:            today,
		TimeStart:       now,
		CreatedBy:       model.CreatedByAdmin,
		Source:          &source,
	}

	err = s.Bookings.WithTx(ctx, func(tx repository.BookingTx) error {
		if err := tx.LockClinic(ctx, clinic.ID); err != nil {
			return err
		}
		initial := TicketInitial(doctor.FullName)
		n, err := tx.CountTicketsWithPrefix(ctx, clinic.ID, today, initial)
		if err != nil {
			return err
		}
		number := fmt.Sprintf("%s%02d", initial, n+1)
		b.TicketNumber = &number

		waiting, err := tx.HasWaitingTicket(ctx, doctor.ID, today)
		if err != nil {
			return err
		}
		b.Status = InitialTicketStatus(waiting, doctor.Schedule.On(today).Lunch, now)
		return tx.Insert(ctx, b)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.Log.Info().Uint64("booking_id", b.ID).Str("ticket", b.Ticket()).Str("status", string(b.Status)).
		Uint64("doctor_id", b.DoctorID).Msg("queue ticket issued")

	s.invalidate(ctx, b.DoctorID)
	return b, nil
}

// TicketInitial is the upper-cased first letter of the first word of a
// doctor's name, or "X" when there is none.
func TicketInitial(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "X"
	}
	if r, _ := utf8.DecodeRuneInString(fields[0]); unicode.IsLetter(r) {
		return string(unicode.ToUpper(r))
	}
	return "X"
}

// InitialTicketStatus calls the patient in straight away when the doctor
// has no one waiting and the issue minute is outside lunch.
func InitialTicketStatus(doctorHasWaiting bool, lunch *timewindow.Window, at timewindow.Clock) model.BookingStatus {
	if doctorHasWaiting {
		return model.StatusPending
	}
	if lunch != nil && lunch.Includes(at) {
		return model.StatusPending
	}
	return model.StatusInvited
}

func deref(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
