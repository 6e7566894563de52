package status

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.0xdad.com/tblyler/meditime/db"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func medication(start time.Time, end *time.Time, times ...string) *db.Medication {
	m := &db.Medication{
		IDUser:    uuid.New(),
		ID:        uuid.New(),
		Name:      "Aspirin",
		Dosage:    "100mg",
		StartDate: start,
		EndDate:   end,
	}

	for _, tod := range times {
		m.Times = append(m.Times, db.MedicationTime{ID: uuid.New(), MedicationID: m.ID, TimeOfDay: tod})
	}

	return m
}

func TestResolveFromClock(t *testing.T) {
	r := NewResolver(DefaultWindows())
	scheduled := at(1, 8, 0)

	assert.Equal(t, Scheduled, r.Resolve(nil, scheduled, at(1, 7, 44)))
	assert.Equal(t, DueSoon, r.Resolve(nil, scheduled, at(1, 7, 45)))
	assert.Equal(t, DueSoon, r.Resolve(nil, scheduled, at(1, 8, 0)))
	assert.Equal(t, DueSoon, r.Resolve(nil, scheduled, at(1, 8, 15)))
	assert.Equal(t, Missed, r.Resolve(nil, scheduled, at(1, 8, 16)))
}

func TestResolveLogWins(t *testing.T) {
	r := NewResolver(DefaultWindows())
	scheduled := at(1, 8, 0)
	now := scheduled.Add(20 * time.Minute)

	missed := &db.IntakeLog{ScheduledTime: scheduled, Status: db.IntakeMissed}
	assert.Equal(t, Missed, r.Resolve(missed, scheduled, now))

	// without the log the clock would say missed
	acknowledged := &db.IntakeLog{ScheduledTime: scheduled, Status: db.IntakeScheduled}
	assert.Equal(t, Scheduled, r.Resolve(acknowledged, scheduled, now))

	taken := &db.IntakeLog{ScheduledTime: scheduled, Status: db.IntakeTaken}
	assert.Equal(t, Taken, r.Resolve(taken, scheduled, at(1, 6, 0)))
}

func TestResolveUnknownLogStatusFallsBackToClock(t *testing.T) {
	r := NewResolver(DefaultWindows())
	log := &db.IntakeLog{Status: db.IntakeStatus("bogus")}

	assert.Equal(t, Missed, r.Resolve(log, at(1, 8, 0), at(1, 9, 0)))
}

func TestResolveWindowsAreConfigurable(t *testing.T) {
	r := NewResolver(Windows{DueSoon: time.Hour, MissedGrace: time.Minute})

	assert.Equal(t, DueSoon, r.Resolve(nil, at(1, 8, 0), at(1, 7, 0)))
	assert.Equal(t, Missed, r.Resolve(nil, at(1, 8, 0), at(1, 8, 2)))
}

func TestActiveToday(t *testing.T) {
	now := at(10, 12, 0)

	assert.True(t, ActiveToday(medication(at(1, 0, 0), nil), now))
	assert.True(t, ActiveToday(medication(at(10, 0, 0), nil), now))
	assert.False(t, ActiveToday(medication(at(11, 0, 0), nil), now))

	end := at(10, 0, 0)
	assert.True(t, ActiveToday(medication(at(1, 0, 0), &end), now))

	end = at(9, 0, 0)
	assert.False(t, ActiveToday(medication(at(1, 0, 0), &end), now))

	// 2024-01-10 is a Wednesday
	m := medication(at(1, 0, 0), nil)
	m.SelectedWeekdays = []time.Weekday{time.Wednesday}
	assert.True(t, ActiveToday(m, now))

	m.SelectedWeekdays = []time.Weekday{time.Monday, time.Friday}
	assert.False(t, ActiveToday(m, now))
}

func TestResolveToday(t *testing.T) {
	r := NewResolver(DefaultWindows())
	now := at(10, 8, 20)

	evening := medication(at(1, 0, 0), nil, "20:00", "08:00")
	morning := medication(at(1, 0, 0), nil, "7:30 am", "bad time")
	future := medication(at(20, 0, 0), nil, "09:00")

	logs := []*db.IntakeLog{
		{MedicationID: evening.ID, ScheduledTime: at(10, 8, 0), Status: db.IntakeTaken},
		{MedicationID: morning.ID, ScheduledTime: at(9, 7, 30), Status: db.IntakeTaken},
	}

	occurrences := r.ResolveToday([]*db.Medication{evening, morning, future}, logs, now)
	require.Len(t, occurrences, 3)

	assert.Equal(t, morning, occurrences[0].Medication)
	assert.Equal(t, "07:30", occurrences[0].TimeOfDay)
	assert.Equal(t, Missed, occurrences[0].Status)
	assert.Nil(t, occurrences[0].Log)

	assert.Equal(t, evening, occurrences[1].Medication)
	assert.Equal(t, at(10, 8, 0), occurrences[1].ScheduledTime)
	assert.Equal(t, Taken, occurrences[1].Status)
	require.NotNil(t, occurrences[1].Log)

	assert.Equal(t, "20:00", occurrences[2].TimeOfDay)
	assert.Equal(t, Scheduled, occurrences[2].Status)
	assert.Equal(t, evening.ID.String()+"_"+evening.Times[0].ID.String(), occurrences[2].ID)
}

func TestTodayRange(t *testing.T) {
	start, end := TodayRange(at(10, 15, 4))
	assert.Equal(t, at(10, 0, 0), start)
	assert.Equal(t, at(11, 0, 0).Add(-time.Millisecond), end)
}
