package reminder

import (
	"time"
)

// StartOfDay is midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last millisecond of t's calendar day in t's location
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// NextTrigger returns the next instant strictly after now at which timeOfDay
// falls inside [start of startDate, end of endDate]. The second return value
// is false once the range has lapsed. Calendar days are evaluated in now's
// location. A nil endDate is unbounded.
func NextTrigger(timeOfDay TimeOfDay, startDate time.Time, endDate *time.Time, now time.Time) (time.Time, bool) {
	loc := now.Location()
	startBound := StartOfDay(startDate.In(loc))

	candidate := timeOfDay.On(now)
	if !candidate.After(now) {
		candidate = timeOfDay.On(candidate.AddDate(0, 0, 1))
	}

	if candidate.Before(startBound) {
		// the first qualifying day is the start date itself
		candidate = timeOfDay.On(startBound)
	}

	if endDate != nil && candidate.After(EndOfDay(endDate.In(loc))) {
		return time.Time{}, false
	}

	return candidate, true
}

// NextTriggerOnWeekdays is NextTrigger restricted to the given weekdays. An
// empty weekday set allows every day.
func NextTriggerOnWeekdays(timeOfDay TimeOfDay, startDate time.Time, endDate *time.Time, weekdays []time.Weekday, now time.Time) (time.Time, bool) {
	candidate, ok := NextTrigger(timeOfDay, startDate, endDate, now)
	if !ok || len(weekdays) == 0 {
		return candidate, ok
	}

	for i := 0; i < 7; i++ {
		if WeekdayAllowed(candidate.Weekday(), weekdays) {
			return candidate, true
		}

		candidate = timeOfDay.On(candidate.AddDate(0, 0, 1))
		if endDate != nil && candidate.After(EndOfDay(endDate.In(candidate.Location()))) {
			return time.Time{}, false
		}
	}

	return time.Time{}, false
}

// WeekdayAllowed reports whether day is in weekdays; an empty set allows all days
func WeekdayAllowed(day time.Weekday, weekdays []time.Weekday) bool {
	if len(weekdays) == 0 {
		return true
	}

	for _, weekday := range weekdays {
		if weekday == day {
			return true
		}
	}

	return false
}
