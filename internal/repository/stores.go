package repository

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// BookingStore is the query surface over appointments used by the
// availability service, the booking service and the queue feed.
// Every method that mutates runs through WithTx.
type BookingStore interface {
	// WithTx runs fn in one transaction.  The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx BookingTx) error) error
	// ActiveStartsInRange returns the start times of the active scheduled
	// bookings of a doctor for every date in [from, to], keyed YYYY-MM-DD.
	ActiveStartsInRange(ctx context.Context, doctorID uint64, from, to time.Time) (map[string][]timewindow.Clock, error)
	// ListByClinicDay returns every booking of a clinic on a day ordered by
	// start time.
	ListByClinicDay(ctx context.Context, clinicID uint64, day time.Time) ([]model.Booking, error)
	// ListByClinicSince returns the bookings of a clinic dated on or after
	// since, newest first.
	ListByClinicSince(ctx context.Context, clinicID uint64, since time.Time) ([]model.Booking, error)
	// ListByDoctor returns the bookings assigned to a doctor, newest first.
	ListByDoctor(ctx context.Context, doctorID uint64) ([]model.Booking, error)
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
}

// BookingTx is the part of the store that only makes sense inside the
// transaction which checks and then writes.
type BookingTx interface {
	// LockDoctor takes an exclusive row lock on the doctor until the
	// transaction ends.  Concurrent bookings for the same doctor queue
	// behind it.
	LockDoctor(ctx context.Context, doctorID uint64) error
	// LockClinic serialises ticket numbering for a clinic.
	LockClinic(ctx context.Context, clinicID uint64) error
	// ActiveStartsOnDate re-reads the active scheduled starts of a doctor on
	// a date.  excludeID skips the booking being moved; 0 skips nothing.
	ActiveStartsOnDate(ctx context.Context, doctorID uint64, date time.Time, excludeID uint64) ([]timewindow.Clock, error)
	Insert(ctx context.Context, b *model.Booking) error
	GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	Update(ctx context.Context, b *model.Booking) error
	// CountTicketsWithPrefix counts the tickets of a clinic on a date whose
	// number starts with prefix.
	CountTicketsWithPrefix(ctx context.Context, clinicID uint64, date time.Time, prefix string) (int, error)
	// HasWaitingTicket reports whether the doctor already has a booking in
	// model.WaitingStatuses on the date.
	HasWaitingTicket(ctx context.Context, doctorID uint64, date time.Time) (bool, error)
}

// ClinicStore reads clinics and their administrators.
type ClinicStore interface {
	GetClinic(ctx context.Context, id uint64) (*model.Clinic, error)
	// IsClinicAdmin reports whether the user administers the clinic.
	IsClinicAdmin(ctx context.Context, clinicID, userID uint64) (bool, error)
	// AdminTelegramIDs returns the bot targets of the clinic administrators.
	AdminTelegramIDs(ctx context.Context, clinicID uint64) ([]int64, error)
	// ListBookingCities returns the distinct cities of active online-booking
	// clinics, sorted.
	ListBookingCities(ctx context.Context) ([]string, error)
}

// DoctorStore reads doctors.
type DoctorStore interface {
	GetDoctor(ctx context.Context, id uint64) (*model.Doctor, error)
	GetDoctorByUser(ctx context.Context, userID uint64) (*model.Doctor, error)
	ListClinicDoctors(ctx context.Context, clinicID uint64) ([]model.Doctor, error)
	// ListDoctorsForService returns the active, bookable doctors offering a
	// service in active online-booking clinics of a city, with the clinic
	// name.  An empty city matches every city.
	ListDoctorsForService(ctx context.Context, serviceID uint64, city string) ([]DoctorWithClinic, error)
	// LeastLoadedDoctor picks the active doctor of a clinic offering the
	// service with the fewest active bookings on date.  Ties go to the
	// lowest doctor id.
	LeastLoadedDoctor(ctx context.Context, clinicID, serviceID uint64, date time.Time) (*model.Doctor, error)
	// FirstServiceID returns the doctor's service with the lowest id, nil
	// when the doctor offers none.
	FirstServiceID(ctx context.Context, doctorID uint64) (*uint64, error)
}

// ServiceStore reads services.
type ServiceStore interface {
	GetService(ctx context.Context, id uint64) (*model.Service, error)
	ListClinicServices(ctx context.Context, clinicID uint64) ([]model.Service, error)
	// ListBookableServices returns the distinct services offered by active,
	// bookable doctors of active online-booking clinics, by name.
	ListBookableServices(ctx context.Context) ([]model.Service, error)
}

// UserStore resolves notification targets of patients.
type UserStore interface {
	// TelegramIDsByPatient returns at most one bot target: the user whose
	// phone and full name (case-insensitive) match the booking's patient.
	TelegramIDsByPatient(ctx context.Context, fullName, phone string) ([]int64, error)
}

// DoctorWithClinic is a search row.
type DoctorWithClinic struct {
	Doctor     model.Doctor
	ClinicName string
}
