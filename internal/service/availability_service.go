package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/availability"
	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

const (
	// DefaultAvailabilityDays is the window of a single doctor query.
	DefaultAvailabilityDays = 7
	// MaxAvailabilityDays caps the days parameter.
	MaxAvailabilityDays = 31
	// SearchDays is the window of the doctor search.
	SearchDays = 3
)

// SlotCache stores computed slot maps per doctor.  variant identifies the
// query (first day, days, duration and, when the window covers today, the
// current minute).  Invalidate drops every variant of a doctor.  A cache
// failure is never fatal: Get reports a miss and Set/Invalidate log.
type SlotCache interface {
	Get(ctx context.Context, doctorID uint64, variant string) (slots map[string][]timewindow.Clock, version int64, ok bool)
	Set(ctx context.Context, doctorID uint64, variant string, version int64, slots map[string][]timewindow.Clock)
	Invalidate(ctx context.Context, doctorID uint64)
}

// AvailabilityService answers slot queries.  It owns no state besides the
// optional cache.
type AvailabilityService struct {
	bookings repository.BookingStore
	doctors  repository.DoctorStore
	services repository.ServiceStore
	clinics  repository.ClinicStore
	calc     *availability.Calculator
	cache    SlotCache
	log      zerolog.Logger
}

// NewAvailabilityService wires the service.  cache may be nil.
func NewAvailabilityService(bookings repository.BookingStore, doctors repository.DoctorStore, services repository.ServiceStore,
	clinics repository.ClinicStore, calc *availability.Calculator, cache SlotCache, log zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{bookings: bookings, doctors: doctors, services: services, clinics: clinics, calc: calc, cache: cache, log: log}
}

// SearchOptions lists the services and cities a patient can search by.
func (s *AvailabilityService) SearchOptions(ctx context.Context) (*model.SearchOptions, error) {
	services, err := s.services.ListBookableServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookable services: %w", err)
	}
	cities, err := s.clinics.ListBookingCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list booking cities: %w", err)
	}
	return &model.SearchOptions{Services: services, Cities: cities}, nil
}

// DoctorAvailability returns the free slots of one doctor starting at
// start.  A zero start means today; a start in the past is moved to today.
// days <= 0 selects DefaultAvailabilityDays and larger values are capped at
// MaxAvailabilityDays.
func (s *AvailabilityService) DoctorAvailability(ctx context.Context, doctorID uint64, serviceID *uint64, start time.Time, days int) (*model.DoctorSlots, error) {
	doctor, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, ErrNotFound
	}
	svc, err := s.optionalService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultAvailabilityDays
	}
	if days > MaxAvailabilityDays {
		days = MaxAvailabilityDays
	}
	duration := availability.ResolveDuration(*doctor, svc)
	slots, err := s.slots(ctx, *doctor, duration, s.clampStart(start), days)
	if err != nil {
		return nil, err
	}
	return &model.DoctorSlots{Doctor: *doctor, Duration: duration, Slots: slots}, nil
}

// SearchAvailableDoctors lists the doctors offering serviceID in city
// with SearchDays of availability from start.  Doctors without a single
// free slot are dropped; the rest are ordered by free slot count, highest
// first, keeping store order on ties.
func (s *AvailabilityService) SearchAvailableDoctors(ctx context.Context, serviceID uint64, city string, start time.Time) ([]model.DoctorSlots, error) {
	if serviceID == 0 {
		return nil, invalid("service_id", "is required")
	}
	svc, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	rows, err := s.doctors.ListDoctorsForService(ctx, serviceID, city)
	if err != nil {
		return nil, err
	}
	start = s.clampStart(start)
	out := make([]model.DoctorSlots, 0, len(rows))
	for _, row := range rows {
		duration := availability.ResolveDuration(row.Doctor, svc)
		slots, err := s.slots(ctx, row.Doctor, duration, start, SearchDays)
		if err != nil {
			return nil, err
		}
		ds := model.DoctorSlots{Doctor: row.Doctor, ClinicName: row.ClinicName, Duration: duration, Slots: slots}
		if ds.SlotCount() == 0 {
			continue
		}
		out = append(out, ds)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SlotCount() > out[j].SlotCount() })
	return out, nil
}

func (s *AvailabilityService) optionalService(ctx context.Context, serviceID *uint64) (*model.Service, error) {
	if serviceID == nil || *serviceID == 0 {
		return nil, nil
	}
	return s.services.GetService(ctx, *serviceID)
}

func (s *AvailabilityService) clampStart(start time.Time) time.Time {
	today := s.calc.Today()
	if start.IsZero() {
		return today
	}
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, today.Location())
	if start.Before(today) {
		return today
	}
	return start
}

func (s *AvailabilityService) slots(ctx context.Context, doctor model.Doctor, duration int, start time.Time, days int) (map[string][]timewindow.Clock, error) {
	end := start.AddDate(0, 0, days-1)
	variant := s.variant(start, end, days, duration)
	version := int64(-1)
	if s.cache != nil {
		cached, ver, ok := s.cache.Get(ctx, doctor.ID, variant)
		if ok {
			return cached, nil
		}
		version = ver
	}
	busy, err := s.bookings.ActiveStartsInRange(ctx, doctor.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bookings of doctor %d: %w", doctor.ID, err)
	}
	slots := s.calc.Compute(doctor.Schedule, start, duration, availability.BusyByDate(busy), days)
	if s.cache != nil {
		s.cache.Set(ctx, doctor.ID, variant, version, slots)
	}
	return slots, nil
}

// variant keys a cached map.  The current minute is part of the key only
// when the window contains today, since only today's list shrinks with
// the clock.
func (s *AvailabilityService) variant(start, end time.Time, days, duration int) string {
	key := fmt.Sprintf("%s:%d:%d", start.Format(model.DateLayout), days, duration)
	today := s.calc.Today()
	if !today.Before(start) && !today.After(end) {
		key += ":" + timewindow.FromTime(s.calc.Current()).String()
	}
	return key
}
