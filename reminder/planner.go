package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/metrics"
	"git.0xdad.com/tblyler/meditime/timer"
)

// Timer registers and cancels wake-ups by key
type Timer interface {
	// Schedule a wake-up, replacing any pending one for key. Exact requests may fail with timer.ErrExactNotPermitted.
	Schedule(ctx context.Context, key int32, at time.Time, payload []byte, exact bool) error
	// Cancel the wake-up for key, timer.ErrNotFound when nothing is pending
	Cancel(ctx context.Context, key int32) error
}

// IntakeFinder looks up the record answering an occurrence
type IntakeFinder interface {
	FindIntake(ctx context.Context, medicationID uuid.UUID, scheduledTime time.Time) (*db.IntakeLog, error)
}

// Timing offsets used by the planner
type Timing struct {
	// PreReminder is how far ahead of the due instant the pre-reminder fires
	PreReminder time.Duration
	// Snooze is how long a snoozed alert is deferred
	Snooze time.Duration
	// RespectWeekdays makes planning skip days outside a medication's selected weekdays.
	// Off by default: weekday restricted medications get daily wake-ups and are only
	// filtered when today's status is resolved.
	RespectWeekdays bool
}

// DefaultTiming is a 10 minute pre-reminder and a 5 minute snooze
func DefaultTiming() Timing {
	return Timing{
		PreReminder: 10 * time.Minute,
		Snooze:      5 * time.Minute,
	}
}

// Planner registers the due, pre-reminder and snooze wake-ups of every
// medication time slot. It keeps no state of its own: every key is derived
// from the slot, so planning the same slot twice replaces rather than adds.
type Planner struct {
	timer     Timer
	schedules db.ScheduleStore
	intakes   IntakeFinder
	timing    Timing
	location  *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// NewPlanner creates a planner. schedules is only consulted when timing.RespectWeekdays is set.
func NewPlanner(t Timer, schedules db.ScheduleStore, timing Timing, location *time.Location, now func() time.Time, log zerolog.Logger) *Planner {
	if location == nil {
		location = time.Local
	}

	if now == nil {
		now = time.Now
	}

	return &Planner{
		timer:     t,
		schedules: schedules,
		timing:    timing,
		location:  location,
		now:       now,
		log:       log.With().Str("component", "planner").Logger(),
	}
}

// SkipAnswered makes planning pass over an occurrence already recorded as
// taken or skipped and plan the one after it instead
func (p *Planner) SkipAnswered(intakes IntakeFinder) *Planner {
	p.intakes = intakes
	return p
}

func (p *Planner) currentTime() time.Time {
	return p.now().In(p.location)
}

// NewPayload describes the occurrence of medication at scheduledTime for one of its times of day
func NewPayload(medication *db.Medication, timeOfDay string, scheduledTime time.Time) Payload {
	payload := Payload{
		PatientID:      medication.IDUser.String(),
		MedicationID:   medication.ID.String(),
		MedicationName: medication.Name,
		Dosage:         medication.Dosage,
		TimeOfDay:      timeOfDay,
		ScheduledTime:  scheduledTime.UnixMilli(),
		StartDate:      medication.StartDate.UnixMilli(),
	}

	if medication.EndDate != nil {
		payload.EndDate = medication.EndDate.UnixMilli()
	}

	return payload
}

// ScheduleAll plans every time slot of every medication
func (p *Planner) ScheduleAll(ctx context.Context, medications []*db.Medication) error {
	var errs []error
	for _, medication := range medications {
		if err := p.ScheduleMedication(ctx, medication); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ScheduleMedication plans every time slot of a medication. Slots whose time
// text can't be parsed are skipped.
func (p *Planner) ScheduleMedication(ctx context.Context, medication *db.Medication) error {
	var errs []error
	for _, t := range medication.Times {
		if err := p.ScheduleOccurrence(ctx, medication, t.TimeOfDay); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ScheduleOccurrence registers the due and pre-reminder wake-ups for the next
// occurrence of a time slot. A lapsed medication registers nothing.
func (p *Planner) ScheduleOccurrence(ctx context.Context, medication *db.Medication, timeOfDay string) error {
	log := p.log.With().Str("medication_id", medication.ID.String()).Str("time_of_day", timeOfDay).Logger()

	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		log.Warn().Err(err).Msg("skipping unparseable time of day")
		return nil
	}

	var weekdays []time.Weekday
	if p.timing.RespectWeekdays {
		weekdays = medication.SelectedWeekdays
	}

	trigger, ok := NextTriggerOnWeekdays(tod, medication.StartDate, medication.EndDate, weekdays, p.currentTime())
	if ok && p.answered(ctx, medication.ID, trigger, log) {
		log.Debug().Time("scheduled_time", trigger).Msg("occurrence already answered, planning the next one")
		trigger, ok = NextTriggerOnWeekdays(tod, medication.StartDate, medication.EndDate, weekdays, trigger.Add(time.Millisecond))
	}

	if !ok {
		log.Debug().Msg("medication has lapsed, nothing to schedule")
		return nil
	}

	return p.schedulePair(ctx, NewPayload(medication, timeOfDay, trigger))
}

// answered reports whether the occurrence at scheduled is recorded as taken
// or skipped. A failed lookup counts as unanswered.
func (p *Planner) answered(ctx context.Context, medicationID uuid.UUID, scheduled time.Time, log zerolog.Logger) bool {
	if p.intakes == nil {
		return false
	}

	record, err := p.intakes.FindIntake(ctx, medicationID, scheduled)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Warn().Err(err).Msg("unable to check the intake log, planning anyway")
		}

		return false
	}

	return record.Status == db.IntakeTaken || record.Status == db.IntakeSkipped
}

// schedulePair registers the due wake-up at payload's scheduled time and a
// pre-reminder ahead of it. Both carry the due instant as their scheduled time.
func (p *Planner) schedulePair(ctx context.Context, payload Payload) error {
	due := payload.Scheduled(p.location)
	payload.IsPreReminder = false

	if err := p.register(ctx, PurposeDue, due, payload); err != nil {
		return err
	}

	pre := due.Add(-p.timing.PreReminder)
	if !pre.After(p.currentTime()) {
		pre = due.Add(24*time.Hour - p.timing.PreReminder)
	}

	payload.IsPreReminder = true

	return p.register(ctx, PurposePre, pre, payload)
}

// register asks for exact timing and settles for best effort when it's refused
func (p *Planner) register(ctx context.Context, purpose Purpose, at time.Time, payload Payload) error {
	data, err := payload.Encode()
	if err != nil {
		return err
	}

	key := RequestKey(payload.MedicationID, payload.TimeOfDay, purpose)
	log := p.log.With().
		Str("medication_id", payload.MedicationID).
		Str("time_of_day", payload.TimeOfDay).
		Str("purpose", string(purpose)).
		Int32("key", key).
		Time("at", at).
		Logger()

	mode := "exact"
	err = p.timer.Schedule(ctx, key, at, data, true)
	if errors.Is(err, timer.ErrExactNotPermitted) {
		log.Warn().Msg("exact timing not permitted, falling back to inexact timing")

		mode = "inexact"
		err = p.timer.Schedule(ctx, key, at, data, false)
	}

	if err != nil {
		return fmt.Errorf("failed to schedule %s wake-up for medication %s at %s: %w", purpose, payload.MedicationID, payload.TimeOfDay, err)
	}

	metrics.TimerRegistrations.WithLabelValues(string(purpose), mode).Inc()
	log.Debug().Str("mode", mode).Msg("wake-up scheduled")

	return nil
}

// OnFire plans the occurrence after the one payload answers for. The
// scheduled time is advanced one calendar day with the time of day applied
// again, so zone changes don't drift the slot. Nothing is planned past the
// end date.
func (p *Planner) OnFire(ctx context.Context, payload Payload) error {
	tod, err := ParseTimeOfDay(payload.TimeOfDay)
	if err != nil {
		return fmt.Errorf("unable to plan next occurrence of %s: %w", payload.MedicationID, err)
	}

	now := p.currentTime()
	start := payload.Start(p.location)
	end := payload.End(p.location)

	next := tod.On(payload.Scheduled(p.location).AddDate(0, 0, 1))

	if !next.After(now) {
		// the fire was late by more than a day, derive the next slot from now
		var ok bool
		next, ok = NextTrigger(tod, start, end, now)
		if !ok {
			return nil
		}
	}

	if p.timing.RespectWeekdays {
		weekdays, err := p.selectedWeekdays(ctx, payload.MedicationID)
		if err != nil {
			return err
		}

		var ok bool
		next, ok = NextTriggerOnWeekdays(tod, start, end, weekdays, next.Add(-time.Nanosecond))
		if !ok {
			return nil
		}
	}

	if end != nil && next.After(EndOfDay(*end)) {
		p.log.Debug().Str("medication_id", payload.MedicationID).Str("time_of_day", payload.TimeOfDay).Msg("medication ends before next occurrence")
		return nil
	}

	payload.ScheduledTime = next.UnixMilli()

	return p.schedulePair(ctx, payload)
}

func (p *Planner) selectedWeekdays(ctx context.Context, medicationID string) ([]time.Weekday, error) {
	if p.schedules == nil {
		return nil, nil
	}

	id, err := uuid.Parse(medicationID)
	if err != nil {
		return nil, fmt.Errorf("bad medication id %q: %w", medicationID, err)
	}

	medication, err := p.schedules.GetMedication(ctx, id)
	if err != nil {
		return nil, err
	}

	return medication.SelectedWeekdays, nil
}

// OnSnooze defers the due alert of payload's occurrence. The snoozed wake-up
// keeps the original scheduled time so its log entry still matches the occurrence.
func (p *Planner) OnSnooze(ctx context.Context, payload Payload) error {
	payload.IsPreReminder = false

	return p.register(ctx, PurposeSnooze, p.currentTime().Add(p.timing.Snooze), payload)
}

// Cancel every pending wake-up of a time slot. Slots with nothing pending are left alone.
func (p *Planner) Cancel(ctx context.Context, medicationID, timeOfDay string) error {
	var errs []error
	for _, purpose := range TimerPurposes {
		err := p.timer.Cancel(ctx, RequestKey(medicationID, timeOfDay, purpose))
		if err != nil && !errors.Is(err, timer.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to cancel %s wake-up for medication %s at %s: %w", purpose, medicationID, timeOfDay, err))
		}
	}

	return errors.Join(errs...)
}

// CancelMedication cancels the wake-ups of every time slot of a medication
func (p *Planner) CancelMedication(ctx context.Context, medication *db.Medication) error {
	var errs []error
	for _, t := range medication.Times {
		if err := p.Cancel(ctx, medication.ID.String(), t.TimeOfDay); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
