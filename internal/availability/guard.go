package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// RejectCode identifies which guard check failed.
type RejectCode string

const (
	RejectNotWorkingDay  RejectCode = "not_working_day"
	RejectNoWorkingHours RejectCode = "no_working_hours"
	RejectOutsideHours   RejectCode = "outside_working_hours"
	RejectLunch          RejectCode = "overlaps_lunch"
	RejectSlotTaken      RejectCode = "slot_taken"
)

// ReasonSlotTaken is the message of a lost race for a slot, whether it is
// caught by the guard or by the unique index on insert.
const ReasonSlotTaken = "slot already taken"

// Rejection explains why a candidate slot cannot be booked.
type Rejection struct {
	Code   RejectCode
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Validate checks one candidate slot against the doctor's schedule and the
// start times of the other active bookings of that doctor on that date.
// Checks run in a fixed order and the first failure is returned:
//
//	working day, work window, inside work window, lunch, other bookings.
//
// nil means the slot may be booked.  Callers run this inside the
// transaction that inserts the booking, with busy read in that same
// transaction.
func Validate(schedule model.WeeklySchedule, date time.Time, start timewindow.Clock, duration int, busy []timewindow.Clock) *Rejection {
	day := model.WeekdayOf(date)
	ds := schedule.Day(day)
	if !ds.IsWorkingDay {
		return &Rejection{Code: RejectNotWorkingDay, Reason: fmt.Sprintf("doctor does not work on %s", weekdayName(date))}
	}
	if ds.Work == nil {
		return &Rejection{Code: RejectNoWorkingHours, Reason: "working hours are not set for this day"}
	}
	if !ds.Work.Contains(start, duration) {
		return &Rejection{Code: RejectOutsideHours, Reason: fmt.Sprintf("time is outside working hours (%s)", ds.Work)}
	}
	if ds.Lunch != nil && ds.Lunch.OverlapsSlot(start, duration) {
		return &Rejection{Code: RejectLunch, Reason: fmt.Sprintf("time overlaps the lunch break (%s)", ds.Lunch)}
	}
	if overlapsAny(start, duration, busy) {
		return &Rejection{Code: RejectSlotTaken, Reason: ReasonSlotTaken}
	}
	return nil
}

func weekdayName(date time.Time) string {
	return strings.ToLower(date.Weekday().String())
}
