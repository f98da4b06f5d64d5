package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// Weekday is the lowercase three letter key used by the doctor schedule
// JSON maps.
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

// Weekdays lists the keys in calendar order starting on Monday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayOf maps a date to its schedule key.
func WeekdayOf(t time.Time) Weekday {
	// time.Sunday == 0
	return Weekdays[(int(t.Weekday())+6)%7]
}

// DayFlags is the working_days column: weekday -> works.
type DayFlags map[Weekday]bool

// DayWindows is the working_hours / lunch_time column shape:
// weekday -> ["HH:MM", "HH:MM"].
type DayWindows map[Weekday][]string

// Value and Scan let the maps live in MySQL JSON columns.
func (d DayFlags) Value() (driver.Value, error) { return jsonValue(d) }
func (d *DayFlags) Scan(src interface{}) error  { return jsonScan(src, d) }

func (d DayWindows) Value() (driver.Value, error) { return jsonValue(d) }
func (d *DayWindows) Scan(src interface{}) error  { return jsonScan(src, d) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	}
	return errors.New("model: unsupported JSON column type")
}

// WeeklySchedule is the provider schedule: which days a doctor works, the
// work window of each day and an optional lunch window.
type WeeklySchedule struct {
	WorkingDays  DayFlags   `json:"working_days"`
	WorkingHours DayWindows `json:"working_hours"`
	LunchTime    DayWindows `json:"lunch_time"`
}

// DaySchedule is the resolved schedule of one weekday.  Work is nil when
// the window is absent or malformed; Lunch is nil when there is no usable
// lunch break.
type DaySchedule struct {
	IsWorkingDay bool
	Work         *timewindow.Window
	Lunch        *timewindow.Window
}

// Day resolves the schedule for a weekday.  A malformed lunch window is
// ignored.
func (s WeeklySchedule) Day(day Weekday) DaySchedule {
	ds := DaySchedule{IsWorkingDay: s.WorkingDays[day]}
	if w, ok := timewindow.ParseWindow(s.WorkingHours[day]); ok {
		ds.Work = &w
	}
	if l, ok := timewindow.ParseWindow(s.LunchTime[day]); ok {
		ds.Lunch = &l
	}
	return ds
}

// On is Day for a calendar date.
func (s WeeklySchedule) On(date time.Time) DaySchedule {
	return s.Day(WeekdayOf(date))
}
