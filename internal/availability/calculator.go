// Package availability computes free appointment slots from a doctor's
// weekly schedule and validates a single candidate slot right before it is
// written.  Both sides share the same exclusion rules: the work window,
// the lunch window and the half-open occupied interval of every active
// booking.
package availability

import (
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// BusyByDate maps a YYYY-MM-DD date to the start times of the active
// bookings of one doctor on that day.
type BusyByDate map[string][]timewindow.Clock

// Calculator produces slot maps.  Now is the wall clock; it is read in Loc
// so that "today" and "past" follow the clinic's local time.
type Calculator struct {
	Now func() time.Time
	Loc *time.Location
}

// NewCalculator returns a calculator bound to time.Now in loc.  A nil loc
// means UTC.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{Now: time.Now, Loc: loc}
}

// Today returns the current calendar day in the calculator's location.
func (c *Calculator) Today() time.Time {
	now := c.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc())
}

// Current returns the wall clock in the calculator's location.
func (c *Calculator) Current() time.Time { return c.now() }

func (c *Calculator) now() time.Time {
	if c.Now == nil {
		return time.Now().In(c.loc())
	}
	return c.Now().In(c.loc())
}

func (c *Calculator) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// Compute returns, for each day in [start, start+daysAhead-1], the ordered
// slot starts that are free.  Days the doctor does not work, or whose work
// window is missing or malformed, map to an empty list.  daysAhead <= 0
// yields an empty map.
func (c *Calculator) Compute(schedule model.WeeklySchedule, start time.Time, duration int, busy BusyByDate, daysAhead int) map[string][]timewindow.Clock {
	out := make(map[string][]timewindow.Clock)
	if daysAhead <= 0 || duration <= 0 {
		return out
	}
	now := c.now()
	today := now.Format(model.DateLayout)
	nowClock := timewindow.FromTime(now)

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.loc())
	for i := 0; i < daysAhead; i++ {
		date := day.AddDate(0, 0, i)
		key := date.Format(model.DateLayout)
		ds := schedule.On(date)
		if !ds.IsWorkingDay || ds.Work == nil {
			out[key] = []timewindow.Clock{}
			continue
		}
		var floor *timewindow.Clock
		if key == today {
			floor = &nowClock
		}
		out[key] = daySlots(ds, duration, busy[key], floor)
	}
	return out
}

// daySlots walks the work window in steps of duration.  The step is taken
// whether or not the candidate is excluded, so slots never shift to fill a
// gap.  floor, when set, drops every start strictly before it.
func daySlots(ds model.DaySchedule, duration int, busy []timewindow.Clock, floor *timewindow.Clock) []timewindow.Clock {
	slots := []timewindow.Clock{}
	for t := ds.Work.Start; t.Add(duration) <= ds.Work.End; t = t.Add(duration) {
		if floor != nil && t < *floor {
			continue
		}
		if ds.Lunch != nil && ds.Lunch.OverlapsSlot(t, duration) {
			continue
		}
		if overlapsAny(t, duration, busy) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

// overlapsAny reports whether [t, t+duration) intersects the occupied
// interval [b, b+duration) of any busy start b.
func overlapsAny(t timewindow.Clock, duration int, busy []timewindow.Clock) bool {
	for _, b := range busy {
		if timewindow.Overlaps(t, t.Add(duration), b, b.Add(duration)) {
			return true
		}
	}
	return false
}
