package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

func walkIn(doctorID uint64) IssueTicketInput {
	return IssueTicketInput{ClinicID: clinicID, DoctorID: u64(doctorID), PatientFullName: "Oleg", PatientPhone: "+711"}
}

func TestIssueTicketNumbersAndStatus(t *testing.T) {
	f := newFixture()
	svc := NewQueueService(f.deps)
	ctx := context.Background()

	first, err := svc.IssueTicket(ctx, admin, walkIn(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Ticket() != "A01" || first.Status != model.StatusInvited {
		t.Fatalf("expected A01 invited, got %s %s", first.Ticket(), first.Status)
	}
	if first.Kind != model.KindScheduled || first.CreatedBy != model.CreatedByAdmin ||
		first.Source == nil || *first.Source != model.SourceElectronicQueue {
		t.Fatalf("unexpected ticket %+v", first)
	}
	if first.ServiceID == nil || *first.ServiceID != 5 {
		t.Fatalf("expected the doctor's first service, got %v", first.ServiceID)
	}
	if first.DateString() != "2025-03-03" || first.TimeStart != timewindow.MustClock("08:00") {
		t.Fatalf("ticket must be issued for now, got %s %s", first.DateString(), first.TimeStart)
	}

	second, err := svc.IssueTicket(ctx, admin, walkIn(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Ticket() != "A02" || second.Status != model.StatusPending {
		t.Fatalf("expected A02 pending, got %s %s", second.Ticket(), second.Status)
	}

	other, err := svc.IssueTicket(ctx, admin, walkIn(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Ticket() != "B01" || other.Status != model.StatusInvited {
		t.Fatalf("expected B01 invited, got %s %s", other.Ticket(), other.Status)
	}
}

func TestIssueTicketDuringLunchIsPending(t *testing.T) {
	f := newFixture()
	f.deps.Calc = fixedCalc(time.Date(2025, 3, 3, 13, 15, 0, 0, time.UTC))
	b, err := NewQueueService(f.deps).IssueTicket(context.Background(), admin, walkIn(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != model.StatusPending {
		t.Fatalf("expected pending during lunch, got %s", b.Status)
	}
}

func TestIssueTicketByServicePicksLeastLoaded(t *testing.T) {
	f := newFixture()
	f.doctors.leastLoaded = f.doctors.doctors[2]
	f.clinics.clinics[clinicID].OnlineQueueOnly = true
	in := IssueTicketInput{ClinicID: clinicID, ServiceID: u64(5), PatientFullName: "Oleg", PatientPhone: "+711"}
	b, err := NewQueueService(f.deps).IssueTicket(context.Background(), admin, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.DoctorID != 2 || b.Ticket() != "B01" || b.Kind != model.KindQueue {
		t.Fatalf("unexpected ticket %+v", b)
	}
	if b.ServiceID == nil || *b.ServiceID != 5 {
		t.Fatalf("expected the requested service, got %v", b.ServiceID)
	}

	f.doctors.leastLoaded = nil
	if _, err := NewQueueService(f.deps).IssueTicket(context.Background(), admin, in); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found without a doctor, got %v", err)
	}
}

func TestIssueTicketFollowsBookingMode(t *testing.T) {
	byDoctor := walkIn(1)
	byService := IssueTicketInput{ClinicID: clinicID, ServiceID: u64(5), PatientFullName: "Oleg", PatientPhone: "+711"}
	tests := []struct {
		name           string
		doctors, svcs  bool
		in             IssueTicketInput
		wantDoctor     uint64
		wantValidation bool
	}{
		{"doctor mode, doctor chosen", true, false, byDoctor, 1, false},
		{"doctor mode, service chosen", true, false, byService, 0, true},
		{"service mode, doctor chosen", false, true, byDoctor, 0, true},
		{"service mode, service chosen", false, true, byService, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.doctors.leastLoaded = f.doctors.doctors[2]
			c := f.clinics.clinics[clinicID]
			c.IsBookingForDoctors, c.IsBookingForServices = tt.doctors, tt.svcs
			b, err := NewQueueService(f.deps).IssueTicket(context.Background(), admin, tt.in)
			if tt.wantValidation {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected validation error, got ticket=%v err=%v", b, err)
				}
				if n := len(f.bookings.all()); n != 0 {
					t.Fatalf("rejected ticket stored, have %d", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.DoctorID != tt.wantDoctor {
				t.Fatalf("expected doctor %d, got %d", tt.wantDoctor, b.DoctorID)
			}
		})
	}
}

func TestIssueTicketRejections(t *testing.T) {
	f := newFixture()
	svc := NewQueueService(f.deps)
	ctx := context.Background()

	if _, err := svc.IssueTicket(ctx, model.Actor{UserID: adminUserID, Role: model.RoleQueueAdmin}, walkIn(1)); !errors.Is(err, ErrForbidden) {
		t.Errorf("queue admins may not issue tickets, got %v", err)
	}
	noPhone := walkIn(1)
	noPhone.PatientPhone = ""
	var ve *ValidationError
	if _, err := svc.IssueTicket(ctx, admin, noPhone); !errors.As(err, &ve) {
		t.Errorf("expected validation error, got %v", err)
	}
	neither := IssueTicketInput{ClinicID: clinicID, PatientFullName: "Oleg", PatientPhone: "+711"}
	if _, err := svc.IssueTicket(ctx, admin, neither); !errors.As(err, &ve) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.IssueTicket(ctx, admin, walkIn(3)); !errors.Is(err, ErrNotFound) {
		t.Errorf("doctor of another clinic, got %v", err)
	}
	foreign := walkIn(1)
	foreign.ClinicID = 2
	if _, err := svc.IssueTicket(ctx, admin, foreign); !errors.Is(err, ErrNotFound) {
		t.Errorf("clinic not administered, got %v", err)
	}
	f.clinics.clinics[clinicID].IsElectronicQueue = false
	if _, err := svc.IssueTicket(ctx, admin, walkIn(1)); !errors.Is(err, ErrForbidden) {
		t.Errorf("queue disabled, got %v", err)
	}
	if n := len(f.bookings.all()); n != 0 {
		t.Fatalf("rejected tickets must not be stored, have %d", n)
	}
}

func TestTicketInitial(t *testing.T) {
	tests := map[string]string{
		"anna petrova": "A",
		"Иван Петров":  "И",
		"   ":          "X",
		"":             "X",
		"1st Doctor":   "X",
		" boris":       "B",
	}
	for in, want := range tests {
		if got := TicketInitial(in); got != want {
			t.Errorf("TicketInitial(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitialTicketStatus(t *testing.T) {
	lunch := &timewindow.Window{Start: timewindow.MustClock("13:00"), End: timewindow.MustClock("14:00")}
	tests := []struct {
		waiting bool
		lunch   *timewindow.Window
		at      string
		want    model.BookingStatus
	}{
		{waiting: false, lunch: nil, at: "13:30", want: model.StatusInvited},
		{waiting: false, lunch: lunch, at: "12:59", want: model.StatusInvited},
		{waiting: false, lunch: lunch, at: "13:00", want: model.StatusPending},
		{waiting: false, lunch: lunch, at: "14:00", want: model.StatusInvited},
		{waiting: true, lunch: nil, at: "10:00", want: model.StatusPending},
	}
	for _, tt := range tests {
		if got := InitialTicketStatus(tt.waiting, tt.lunch, timewindow.MustClock(tt.at)); got != tt.want {
			t.Errorf("InitialTicketStatus(%v, %v, %s) = %s, want %s", tt.waiting, tt.lunch, tt.at, got, tt.want)
		}
	}
}
