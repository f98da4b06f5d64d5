package feed

import (
	"encoding/json"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
)

// EventType tags every message of a feed session.
type EventType string

const (
	EventConnected EventType = "connected"
	EventInitial   EventType = "initial"
	EventUpdate    EventType = "update"
	EventError     EventType = "error"
)

// Announcement is one voiced call-out attached to an update.
type Announcement struct {
	AppointmentID uint64 `json:"appointment_id"`
	AudioBase64   string `json:"audio_base64"`
	NumberCoupon  string `json:"number_coupon"`
	PatientName   string `json:"patient_name"`
	CabinetNumber string `json:"cabinet_number"`
}

// Event is a feed message.  Only the fields of its type are encoded.
type Event struct {
	Type          EventType
	ClinicID      uint64
	Appointments  []model.Booking
	Announcements []Announcement
	Message       string
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": e.Type}
	switch e.Type {
	case EventConnected:
		out["clinic_id"] = e.ClinicID
	case EventInitial, EventUpdate:
		list := e.Appointments
		if list == nil {
			list = []model.Booking{}
		}
		out["appointments"] = list
		if len(e.Announcements) > 0 {
			out["voice_announcements"] = e.Announcements
		}
	case EventError:
		out["message"] = e.Message
	}
	return json.Marshal(out)
}
