// Package timewindow holds the time-of-day arithmetic shared by the
// availability calculator, the reservation guard and the queue ticket
// issuer.  Everything here is pure: no clocks, no I/O.
package timewindow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay bounds every Clock value.
const MinutesPerDay = 24 * 60

// Clock is a time of day expressed as minutes since midnight.
type Clock int

// ParseClock accepts "HH:MM" or "HH:MM:SS" (the MySQL TIME text form).
// Seconds are truncated.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timewindow: invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("timewindow: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("timewindow: invalid minute in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("timewindow: invalid second in %q", s)
		}
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FromTime returns the wall-clock time of day of t in t's location.
func FromTime(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Add returns c shifted by the given number of minutes.  The result is not
// wrapped at midnight; callers compare against window ends.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

// Minutes returns the raw minute offset.
func (c Clock) Minutes() int { return int(c) }

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON writes the clock as an "HH:MM" string.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON reads an "HH:MM" string.
func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Value stores the clock in a TIME column.
func (c Clock) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// Scan reads a TIME column.  The MySQL driver hands TIME back as text even
// with parseTime enabled.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case time.Time:
		*c = FromTime(v)
		return nil
	case nil:
		return fmt.Errorf("timewindow: cannot scan NULL into Clock")
	}
	return fmt.Errorf("timewindow: unsupported scan type %T", src)
}

func (c *Clock) scanString(s string) error {
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Window is a half-open interval [Start, End) within one day.
type Window struct {
	Start Clock
	End   Clock
}

// ParseWindow builds a window from a two element ["HH:MM","HH:MM"] pair as
// stored in the doctor schedule JSON.  ok is false when the pair is absent,
// malformed or degenerate (start >= end).
func ParseWindow(pair []string) (Window, bool) {
	if len(pair) < 2 {
		return Window{}, false
	}
	start, err := ParseClock(pair[0])
	if err != nil {
		return Window{}, false
	}
	end, err := ParseClock(pair[1])
	if err != nil {
		return Window{}, false
	}
	w := Window{Start: start, End: end}
	return w, w.Valid()
}

// Valid reports whether Start < End.
func (w Window) Valid() bool { return w.Start < w.End }

// Contains reports whether [start, start+duration) lies fully inside w.
func (w Window) Contains(start Clock, duration int) bool {
	return start >= w.Start && start.Add(duration) <= w.End
}

// Includes reports whether the instant c falls inside [Start, End).
func (w Window) Includes(c Clock) bool {
	return w.Start <= c && c < w.End
}

// OverlapsSlot reports whether [start, start+duration) intersects w.
func (w Window) OverlapsSlot(start Clock, duration int) bool {
	return Overlaps(start, start.Add(duration), w.Start, w.End)
}

// String formats the window as "HH:MM - HH:MM".
func (w Window) String() string {
	return w.Start.String() + " - " + w.End.String()
}

// Overlaps is the half-open interval intersection test used everywhere a
// slot is compared against lunch or an existing booking.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}
