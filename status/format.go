package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/reminder"
)

const (
	dateLayout    = "Jan 2, 2006"
	instantLayout = "Jan 2, 2006 3:04 PM"
)

// FrequencyText such as "Daily", "Every 6 hours" or "On Mon, Thu"
func FrequencyText(medication *db.Medication) string {
	switch medication.FrequencyType {
	case db.FrequencyHourly:
		if medication.FrequencyValue == 0 {
			return "Every X hours"
		}

		return fmt.Sprintf("Every %d hours", medication.FrequencyValue)

	case db.FrequencySelectedDays:
		return "On " + WeekdaysText(medication.SelectedWeekdays)

	default:
		return "Daily"
	}
}

// WeekdaysText lists weekdays as "Sun, Tue", or "all days" when empty
func WeekdaysText(weekdays []time.Weekday) string {
	if len(weekdays) == 0 {
		return "all days"
	}

	labels := make([]string, 0, len(weekdays))
	for _, weekday := range weekdays {
		labels = append(labels, weekday.String()[:3])
	}

	return strings.Join(labels, ", ")
}

// TimesText lists a medication's times of day in order, 12-hour form
func TimesText(medication *db.Medication) string {
	times := make([]string, 0, len(medication.Times))
	for _, t := range medication.Times {
		times = append(times, t.TimeOfDay)
	}

	sort.Strings(times)

	for i, t := range times {
		times[i] = reminder.DisplayTimeOfDay(t)
	}

	return strings.Join(times, ", ")
}

// DateRangeText such as "Jan 1, 2024 - No end date"
func DateRangeText(medication *db.Medication) string {
	end := "No end date"
	if medication.EndDate != nil {
		end = medication.EndDate.Format(dateLayout)
	}

	return medication.StartDate.Format(dateLayout) + " - " + end
}

// InstantText such as "Mar 9, 2024 8:03 AM"
func InstantText(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(instantLayout)
}

// IntakeText is the recorded status, with the taken time when there is one
func IntakeText(log *db.IntakeLog, loc *time.Location) string {
	if log.TakenTime == nil {
		return string(log.Status)
	}

	return string(log.Status) + " at " + InstantText(*log.TakenTime, loc)
}
