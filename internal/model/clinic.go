package model

import "time"

// Clinic groups doctors and services and carries the booking mode flags.
type Clinic struct {
	ID                   uint64    `json:"id"`
	Name                 string    `json:"name"`
	City                 string    `json:"city"`
	Address              string    `json:"address"`
	IsActive             bool      `json:"is_active"`
	IsOnlineBooking      bool      `json:"is_online_booking"`
	IsElectronicQueue    bool      `json:"is_electronic_queue"`
	IsBookingForServices bool      `json:"is_booking_for_services"`
	IsBookingForDoctors  bool      `json:"is_booking_for_doctors"`
	OnlineQueueOnly      bool      `json:"online_queue_only"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// QueueModeValid holds the flag invariant: an electronic queue needs at
// least one way of choosing who the patient is queued for.
func (c Clinic) QueueModeValid() bool {
	if !c.IsElectronicQueue {
		return true
	}
	return c.IsBookingForServices || c.IsBookingForDoctors
}

// QueueSettings is what the queue admin client needs to register walk-ins.
type QueueSettings struct {
	ClinicID             uint64    `json:"clinic_id"`
	ClinicName           string    `json:"clinic_name"`
	IsElectronicQueue    bool      `json:"is_electronic_queue"`
	IsBookingForServices bool      `json:"is_booking_for_services"`
	IsBookingForDoctors  bool      `json:"is_booking_for_doctors"`
	OnlineQueueOnly      bool      `json:"online_queue_only"`
	Services             []Service `json:"services"`
	Doctors              []Doctor  `json:"doctors"`
}
