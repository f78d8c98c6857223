package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType names a scheduled event a product declares.
type EventType string

// =============================================================================
// SCHEDULE DESCRIPTOR
// =============================================================================

// ScheduleDescriptor is a symbolic description of when an event runs.
// Unset fields are wildcards:
//
//	{Hour, Minute, Second}          every day at that time
//	{Day, Hour...}                  every month on Day (clipped to month end)
//	{Month, Day, Hour...}           every year
//	{Year, Month, Day, Hour...}     exactly once
//
// Hooks produce descriptors fresh each time; nothing retains a
// materialised future timeline.
type ScheduleDescriptor struct {
	Year   *int `json:"year,omitempty"`
	Month  *int `json:"month,omitempty"`
	Day    *int `json:"day,omitempty"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
	Second *int `json:"second,omitempty"`
}

func intPtr(i int) *int { return &i }

// Daily returns a descriptor that fires every day at the given time.
func Daily(hour, minute, second int) ScheduleDescriptor {
	return ScheduleDescriptor{Hour: intPtr(hour), Minute: intPtr(minute), Second: intPtr(second)}
}

// At returns a one-off descriptor for the calendar day of t at the given
// time of day.
func At(t time.Time, hour, minute, second int) ScheduleDescriptor {
	return ScheduleDescriptor{
		Year: intPtr(t.Year()), Month: intPtr(int(t.Month())), Day: intPtr(t.Day()),
		Hour: intPtr(hour), Minute: intPtr(minute), Second: intPtr(second),
	}
}

func (d ScheduleDescriptor) IsOneOff() bool { return d.Year != nil }

func (d ScheduleDescriptor) clock() (int, int, int) {
	get := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return get(d.Hour), get(d.Minute), get(d.Second)
}

// Next returns the first occurrence strictly after the given time, and
// false when a one-off descriptor has already fired.
func (d ScheduleDescriptor) Next(after time.Time) (time.Time, bool) {
	after = after.UTC()
	h, m, s := d.clock()

	switch {
	case d.Year != nil:
		month, day := time.January, 1
		if d.Month != nil {
			month = time.Month(*d.Month)
		}
		if d.Day != nil {
			day = *d.Day
		}
		t := ClipDay(*d.Year, month, day).Add(clockOffset(h, m, s))
		if t.After(after) {
			return t, true
		}
		return time.Time{}, false

	case d.Month != nil:
		day := 1
		if d.Day != nil {
			day = *d.Day
		}
		for y := after.Year(); y <= after.Year()+1; y++ {
			t := ClipDay(y, time.Month(*d.Month), day).Add(clockOffset(h, m, s))
			if t.After(after) {
				return t, true
			}
		}

	case d.Day != nil:
		for i := 0; i <= 2; i++ {
			first := StartOfMonth(after.Year(), after.Month()+time.Month(i))
			t := ClipDay(first.Year(), first.Month(), *d.Day).Add(clockOffset(h, m, s))
			if t.After(after) {
				return t, true
			}
		}

	default:
		t := StartOfDay(after).Add(clockOffset(h, m, s))
		if !t.After(after) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}
	return time.Time{}, false
}

func clockOffset(h, m, s int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

func (d ScheduleDescriptor) String() string {
	field := func(name string, p *int) string {
		if p == nil {
			return name + "=*"
		}
		return fmt.Sprintf("%s=%d", name, *p)
	}
	return strings.Join([]string{
		field("year", d.Year), field("month", d.Month), field("day", d.Day),
		field("hour", d.Hour), field("minute", d.Minute), field("second", d.Second),
	}, " ")
}

// =============================================================================
// SCHEDULE UPDATE - directive
// =============================================================================

// ScheduleUpdate asks the host to (re)schedule or stop an event.
type ScheduleUpdate struct {
	Event      EventType
	Descriptor ScheduleDescriptor
	Remove     bool
}
