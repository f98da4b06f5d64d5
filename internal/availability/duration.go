package availability

import "github.com/iliyamo/clinic-queue-booking/internal/model"

// ResolveDuration returns the slot length for a doctor and an optional
// service.  A service duration wins over the doctor default; a missing or
// non-positive doctor default falls back to model.DefaultSlotMinutes.
// The calculator and the guard both take their duration from here.
func ResolveDuration(doctor model.Doctor, svc *model.Service) int {
	if svc != nil && svc.DurationMinutes != nil && *svc.DurationMinutes > 0 {
		return *svc.DurationMinutes
	}
	if doctor.DefaultDuration > 0 {
		return doctor.DefaultDuration
	}
	return model.DefaultSlotMinutes
}
