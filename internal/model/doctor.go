package model

import (
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// DefaultSlotMinutes applies when neither the service nor the doctor
// defines a duration.
const DefaultSlotMinutes = 30

// Doctor is a bookable provider working in one clinic.
//
// Fields:
//  ID                  - doctors.id
//  ClinicID            - doctors.clinic_id
//  UserID              - optional link to the login that acts as this doctor
//  FullName            - display name; its first letter prefixes queue tickets
//  Specialty           - free text
//  CabinetNumber       - room announced to queued patients
//  Schedule            - working days, hours and lunch per weekday
//  DefaultDuration     - slot length in minutes when the service has none
//  IsActive            - hidden from every listing when false
//  AvailableForBooking - excluded from online booking when false
type Doctor struct {
	ID                  uint64         `json:"id"`
	ClinicID            uint64         `json:"clinic"`
	UserID              *uint64        `json:"-"`
	FullName            string         `json:"full_name"`
	Specialty           string         `json:"specialty"`
	CabinetNumber       string         `json:"cabinet_number"`
	Schedule            WeeklySchedule `json:"schedule"`
	DefaultDuration     int            `json:"default_duration"`
	IsActive            bool           `json:"is_active"`
	AvailableForBooking bool           `json:"available_for_booking"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// DoctorSlots is one entry of the availability search: a doctor with the
// free slot starts of the next days.
type DoctorSlots struct {
	Doctor     Doctor                        `json:"doctor"`
	ClinicName string                        `json:"clinic_name"`
	Duration   int                           `json:"duration"`
	Slots      map[string][]timewindow.Clock `json:"available_slots"`
}

// SlotCount is the total number of free slots over all days.
func (d DoctorSlots) SlotCount() int {
	n := 0
	for _, s := range d.Slots {
		n += len(s)
	}
	return n
}
