package model

import (
	"encoding/json"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// DateLayout is the wire and storage format for booking dates.
const DateLayout = "2006-01-02"

// BookingKind separates scheduled appointments from queue-only tickets.
// Both live in the appointments table and are distinguished by the kind
// column.
type BookingKind string

const (
	KindScheduled BookingKind = "scheduled" // appointment booked against a slot (may carry a ticket when registered by an admin)
	KindQueue     BookingKind = "queue"     // walk-in ticket of an online-queue-only clinic
)

// CreatedBy records which party created a booking.
type CreatedBy string

const (
	CreatedByPatient CreatedBy = "patient"
	CreatedByClinic  CreatedBy = "clinic"
	CreatedByAdmin   CreatedBy = "admin"
)

// SourceElectronicQueue marks bookings registered through the electronic queue.
const SourceElectronicQueue = "electronic_queue"

// Booking is a single appointment or queue ticket.
//
// Fields:
//  ID              - appointments.id
//  Kind            - scheduled or queue
//  ClinicID        - owning clinic
//  DoctorID        - assigned doctor
//  ServiceID       - optional service; drives the duration
//  PatientFullName - patient contact name
//  PatientPhone    - patient contact phone
//  Date            - calendar day in the clinic's location (time part is zero)
//  TimeStart       - slot start (scheduled) or issue minute (ticket)
//  Status          - lifecycle state, see lifecycle.go
//  TicketNumber    - electronic queue ticket such as A01, nil for plain bookings
//  Comment         - free-text note, editable by doctors
//  CreatedBy       - patient, clinic or admin
//  Source          - optional origin tag, e.g. electronic_queue
//  CreatedAt       - system managed
//  UpdatedAt       - system managed, never before CreatedAt
//
// The joined fields (ClinicName, DoctorName, DoctorCabinet, ServiceName) are
// populated by read queries only.
type Booking struct {
	ID              uint64           `json:"id"`
	Kind            BookingKind      `json:"kind"`
	ClinicID        uint64           `json:"clinic"`
	ClinicName      string           `json:"clinic_name,omitempty"`
	DoctorID        uint64           `json:"doctor"`
	DoctorName      string           `json:"doctor_name,omitempty"`
	DoctorCabinet   string           `json:"doctor_cabinet_number,omitempty"`
	ServiceID       *uint64          `json:"service"`
	ServiceName     *string          `json:"service_name"`
	PatientFullName string           `json:"patient_full_name"`
	PatientPhone    string           `json:"patient_phone"`
	Date            time.Time        `json:"-"`
	TimeStart       timewindow.Clock `json:"time_start"`
	Status          BookingStatus    `json:"status"`
	TicketNumber    *string          `json:"number_coupon"`
	Comment         *string          `json:"comment"`
	CreatedBy       CreatedBy        `json:"created_by"`
	Source          *string          `json:"source"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DateString returns the booking date formatted with DateLayout.
func (b Booking) DateString() string { return b.Date.Format(DateLayout) }

// IsActive reports whether the booking still occupies its interval.
func (b Booking) IsActive() bool { return IsActiveStatus(b.Kind, b.Status) }

// Ticket returns the ticket number or an empty string.
func (b Booking) Ticket() string {
	if b.TicketNumber == nil {
		return ""
	}
	return *b.TicketNumber
}

// MarshalJSON renders Date as YYYY-MM-DD next to the other fields.
func (b Booking) MarshalJSON() ([]byte, error) {
	type alias Booking
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(b), Date: b.DateString()})
}
