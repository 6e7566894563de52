// Package status resolves what each of today's doses looks like right now.
package status

import (
	"sort"
	"time"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/reminder"
)

// Status of an occurrence as shown to the user
type Status string

const (
	// Taken a log says the dose was taken
	Taken Status = "taken"
	// DueSoon the dose is inside the due-soon window and not yet missed
	DueSoon Status = "due_soon"
	// Missed the dose is past the grace window, or a log says so
	Missed Status = "missed"
	// Scheduled the dose is still ahead, or a log acknowledged it
	Scheduled Status = "scheduled"
	// Snoozed a log says the alert was deferred
	Snoozed Status = "snoozed"
	// Skipped a log says the dose was skipped
	Skipped Status = "skipped"
)

// FromIntake maps a recorded intake status to the displayed one
func FromIntake(status db.IntakeStatus) (Status, bool) {
	switch status {
	case db.IntakeTaken:
		return Taken, true
	case db.IntakeSnoozed:
		return Snoozed, true
	case db.IntakeSkipped:
		return Skipped, true
	case db.IntakeMissed:
		return Missed, true
	case db.IntakeScheduled:
		return Scheduled, true
	}

	return "", false
}

// Windows around the scheduled instant that drive time derived statuses
type Windows struct {
	DueSoon     time.Duration
	MissedGrace time.Duration
}

// DefaultWindows is 15 minutes either side
func DefaultWindows() Windows {
	return Windows{
		DueSoon:     15 * time.Minute,
		MissedGrace: 15 * time.Minute,
	}
}

// Occurrence is one of today's doses with its resolved status
type Occurrence struct {
	ID            string
	Medication    *db.Medication
	TimeOfDay     string
	ScheduledTime time.Time
	Status        Status
	Log           *db.IntakeLog
}

// Resolver derives today's occurrences. It holds no state and can be re-run on every observation.
type Resolver struct {
	windows Windows
}

// NewResolver with the given windows
func NewResolver(windows Windows) *Resolver {
	return &Resolver{windows: windows}
}

// TodayRange is the first and last millisecond of now's calendar day
func TodayRange(now time.Time) (time.Time, time.Time) {
	return reminder.StartOfDay(now), reminder.EndOfDay(now)
}

// ActiveToday reports whether medication has an occurrence on now's calendar
// day: its date range covers today and, when it has selected weekdays, today
// is one of them
func ActiveToday(medication *db.Medication, now time.Time) bool {
	startOfToday, endOfToday := TodayRange(now)

	if medication.StartDate.After(endOfToday) {
		return false
	}

	if medication.EndDate != nil && medication.EndDate.Before(startOfToday) {
		return false
	}

	return reminder.WeekdayAllowed(now.Weekday(), medication.SelectedWeekdays)
}

// ResolveToday pairs every time slot of the medications active today with
// its log entry, if any, and resolves a status. A logged status always wins
// over the clock. The result is ordered by scheduled time.
func (r *Resolver) ResolveToday(medications []*db.Medication, logs []*db.IntakeLog, now time.Time) []Occurrence {
	byKey := make(map[string]*db.IntakeLog, len(logs))
	for _, log := range logs {
		byKey[log.NaturalKey()] = log
	}

	var occurrences []Occurrence
	for _, medication := range medications {
		if !ActiveToday(medication, now) {
			continue
		}

		for _, t := range medication.Times {
			tod, err := reminder.ParseTimeOfDay(t.TimeOfDay)
			if err != nil {
				continue
			}

			scheduled := tod.On(now)
			log := byKey[db.NaturalKey(medication.ID, scheduled)]

			occurrences = append(occurrences, Occurrence{
				ID:            medication.ID.String() + "_" + t.ID.String(),
				Medication:    medication,
				TimeOfDay:     tod.String(),
				ScheduledTime: scheduled,
				Status:        r.Resolve(log, scheduled, now),
				Log:           log,
			})
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].ScheduledTime.Before(occurrences[j].ScheduledTime)
	})

	return occurrences
}

// Resolve the status of one occurrence
func (r *Resolver) Resolve(log *db.IntakeLog, scheduled, now time.Time) Status {
	if log != nil {
		if status, ok := FromIntake(log.Status); ok {
			return status
		}
	}

	switch {
	case now.After(scheduled.Add(r.windows.MissedGrace)):
		return Missed
	case !now.Before(scheduled.Add(-r.windows.DueSoon)):
		return DueSoon
	default:
		return Scheduled
	}
}
