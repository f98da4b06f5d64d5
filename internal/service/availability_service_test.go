package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

func newAvailability(f *fixture) *AvailabilityService {
	return NewAvailabilityService(f.bookings, f.doctors, f.services, f.clinics, f.deps.Calc, f.cache, zerolog.Nop())
}

func TestSearchAvailableDoctorsSortsAndDrops(t *testing.T) {
	f := newFixture(
		scheduled(0, 1, "2025-03-03", "09:00", model.StatusPending),
		scheduled(0, 1, "2025-03-04", "09:00", model.StatusConfirmed),
	)
	off := model.Doctor{ID: 9, ClinicID: clinicID, FullName: "Off Duty", IsActive: true,
		Schedule: model.WeeklySchedule{WorkingDays: model.DayFlags{}}}
	free := *f.doctors.doctors[2]
	f.doctors.byService = map[uint64][]repository.DoctorWithClinic{
		5: {
			{Doctor: *f.doctors.doctors[1], ClinicName: "City Clinic"},
			{Doctor: off, ClinicName: "City Clinic"},
			{Doctor: free, ClinicName: "City Clinic"},
		},
	}

	got, err := newAvailability(f).SearchAvailableDoctors(context.Background(), 5, "Kazan", testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the off duty doctor to be dropped, got %d entries", len(got))
	}
	if got[0].Doctor.ID != 2 || got[1].Doctor.ID != 1 {
		t.Fatalf("expected doctor 2 before doctor 1, got %d, %d", got[0].Doctor.ID, got[1].Doctor.ID)
	}
	if got[0].SlotCount() != 48 || got[1].SlotCount() != 46 {
		t.Fatalf("unexpected slot counts %d, %d", got[0].SlotCount(), got[1].SlotCount())
	}
	if len(got[0].Slots) != SearchDays || got[0].ClinicName != "City Clinic" {
		t.Fatalf("unexpected entry %+v", got[0])
	}
}

func TestSearchAvailableDoctorsRequiresService(t *testing.T) {
	f := newFixture()
	_, err := newAvailability(f).SearchAvailableDoctors(context.Background(), 0, "", testNow)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDoctorAvailabilityDaysAndStart(t *testing.T) {
	f := newFixture()
	svc := newAvailability(f)
	ctx := context.Background()

	ds, err := svc.DoctorAvailability(ctx, 1, nil, time.Time{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Slots) != DefaultAvailabilityDays || ds.Duration != 30 {
		t.Fatalf("expected %d days of 30 minute slots, got %d / %d", DefaultAvailabilityDays, len(ds.Slots), ds.Duration)
	}
	if _, ok := ds.Slots["2025-03-03"]; !ok {
		t.Fatal("zero start must mean today")
	}

	ds, err = svc.DoctorAvailability(ctx, 1, nil, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Slots) != MaxAvailabilityDays {
		t.Fatalf("expected cap at %d days, got %d", MaxAvailabilityDays, len(ds.Slots))
	}
	if _, ok := ds.Slots["2025-02-01"]; ok {
		t.Fatal("past start must be moved to today")
	}

	hour := 60
	f.services.services[6] = &model.Service{ID: 6, DurationMinutes: &hour}
	ds, err = svc.DoctorAvailability(ctx, 1, u64(6), testNow, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Duration != 60 || len(ds.Slots["2025-03-03"]) != 8 {
		t.Fatalf("expected eight hour slots, got %d of %d minutes", len(ds.Slots["2025-03-03"]), ds.Duration)
	}
}

func TestDoctorAvailabilityServedFromCache(t *testing.T) {
	f := newFixture()
	svc := newAvailability(f)
	ctx := context.Background()

	first, err := svc.DoctorAvailability(ctx, 1, nil, testNow, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A row written behind the cache's back stays invisible until the
	// doctor's entries are invalidated.
	_ = f.bookings.WithTx(ctx, func(tx repository.BookingTx) error {
		b := scheduled(0, 1, "2025-03-03", "09:00", model.StatusPending)
		return tx.Insert(ctx, &b)
	})
	second, err := svc.DoctorAvailability(ctx, 1, nil, testNow, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Slots["2025-03-03"]) != len(second.Slots["2025-03-03"]) {
		t.Fatal("second read must come from the cache")
	}
	if f.cache.gets != 2 {
		t.Fatalf("expected two cache lookups, got %d", f.cache.gets)
	}

	svc.cache = nil
	third, err := svc.DoctorAvailability(ctx, 1, nil, testNow, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(third.Slots["2025-03-03"]) != len(first.Slots["2025-03-03"])-1 {
		t.Fatal("uncached read must see the new booking")
	}
}

func TestBookingDuringComputationIsNotCachedAsCurrent(t *testing.T) {
	f := newFixture()
	svc := newAvailability(f)
	bookings := NewBookingService(f.deps)
	ctx := context.Background()

	// A booking commits while the first read is computing its map.
	f.cache.afterMiss = func(uint64) {
		f.cache.afterMiss = nil
		if _, err := bookings.CreateBooking(ctx, CreateBookingInput{
			DoctorID: 1, PatientFullName: "Ivan", PatientPhone: "+700", Date: "2025-03-03", Time: "09:00",
		}); err != nil {
			t.Errorf("create booking: %v", err)
		}
	}
	if _, err := svc.DoctorAvailability(ctx, 1, nil, testNow, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.DoctorAvailability(ctx, 1, nil, testNow, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.cache.misses != 2 {
		t.Fatalf("the map computed before the booking must not be served, misses=%d", f.cache.misses)
	}
	for _, c := range got.Slots["2025-03-03"] {
		if c == timewindow.MustClock("09:00") {
			t.Fatal("09:00 was booked and must not be listed")
		}
	}
}

func TestDoctorAvailabilityInactiveDoctor(t *testing.T) {
	f := newFixture()
	f.doctors.doctors[2].IsActive = false
	if _, err := newAvailability(f).DoctorAvailability(context.Background(), 2, nil, testNow, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearchOptionsListsBookableServicesAndCities(t *testing.T) {
	f := newFixture()
	f.clinics.clinics[3] = &model.Clinic{ID: 3, Name: "Closed", City: "Omsk", IsActive: false, IsOnlineBooking: true}
	got, err := newAvailability(f).SearchOptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Services) != 1 || got.Services[0].Name != "Checkup" {
		t.Fatalf("unexpected services %+v", got.Services)
	}
	if len(got.Cities) != 2 || got.Cities[0] != "Kazan" || got.Cities[1] != "Moscow" {
		t.Fatalf("unexpected cities %v", got.Cities)
	}
}
