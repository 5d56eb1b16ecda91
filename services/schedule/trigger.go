package schedule

import (
	"fmt"
	"time"

	"batchflow/pkg/errutil"
)

const timeOfDayLayout = "15:04"

// TriggerSpec holds the parameters needed to compute a task's next execution
// instant. It is a pure value: NextRun performs no I/O and is deterministic
// for a given now.
type TriggerSpec struct {
	TimeOfDay  string
	Frequency  Frequency
	DayOfWeek  *int // 0 (Sunday) through 6, weekly only
	DayOfMonth *int // 1 through 31, monthly only
}

// Validate checks the selector/frequency consistency and ranges. All
// failures surface as invalid schedule parameters before anything persists.
func (s TriggerSpec) Validate() error {
	if _, err := time.Parse(timeOfDayLayout, s.TimeOfDay); err != nil {
		return errutil.BadRequest(fmt.Sprintf("invalid schedule parameters: time of day %q must be HH:MM", s.TimeOfDay))
	}

	switch s.Frequency {
	case Daily:
		if s.DayOfWeek != nil || s.DayOfMonth != nil {
			return errutil.BadRequest("invalid schedule parameters: daily frequency takes no day selector")
		}
	case Weekly:
		if s.DayOfMonth != nil {
			return errutil.BadRequest("invalid schedule parameters: weekly frequency takes no day_of_month")
		}
		if s.DayOfWeek == nil {
			return errutil.BadRequest("invalid schedule parameters: weekly frequency requires day_of_week")
		}
		if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return errutil.BadRequest(fmt.Sprintf("invalid schedule parameters: day_of_week %d out of range 0-6", *s.DayOfWeek))
		}
	case Monthly:
		if s.DayOfWeek != nil {
			return errutil.BadRequest("invalid schedule parameters: monthly frequency takes no day_of_week")
		}
		if s.DayOfMonth == nil {
			return errutil.BadRequest("invalid schedule parameters: monthly frequency requires day_of_month")
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return errutil.BadRequest(fmt.Sprintf("invalid schedule parameters: day_of_month %d out of range 1-31", *s.DayOfMonth))
		}
	default:
		return errutil.BadRequest(fmt.Sprintf("invalid schedule parameters: unknown frequency %q", s.Frequency))
	}

	return nil
}

// NextRun computes the next execution instant strictly after now.
func (s TriggerSpec) NextRun(now time.Time) (time.Time, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}

	tod, _ := time.Parse(timeOfDayLayout, s.TimeOfDay)

	// Daily candidate: today at the requested time, or tomorrow if that
	// already passed.
	candidate := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	switch s.Frequency {
	case Weekly:
		offset := (*s.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
	case Monthly:
		year, month := candidate.Year(), candidate.Month()
		if candidate.Day() > *s.DayOfMonth {
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		day := clampDayOfMonth(year, month, *s.DayOfMonth)
		candidate = time.Date(year, month, day, tod.Hour(), tod.Minute(), 0, 0, now.Location())
	}

	return candidate, nil
}

// clampDayOfMonth pins the requested day to the last valid day of the target
// month, so day 31 in a 30-day month fires on the 30th instead of sliding
// into the next month.
func clampDayOfMonth(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
