// Package fire reacts to delivered wake-ups and to the actions a user takes on an alert.
package fire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/metrics"
	"git.0xdad.com/tblyler/meditime/reminder"
)

// Action a user takes on an alert
type Action string

const (
	// ActionTaken records the dose as taken
	ActionTaken Action = "taken"
	// ActionSnooze defers the alert
	ActionSnooze Action = "snooze"
	// ActionOpen acknowledges the alert without taking the dose
	ActionOpen Action = "open"
	// ActionSkip records the dose as skipped
	ActionSkip Action = "skip"
)

var (
	// ErrUnknownAction occurs for an action outside the known set
	ErrUnknownAction = errors.New("unknown action")
)

// ParseAction from its name
func ParseAction(name string) (Action, error) {
	switch action := Action(name); action {
	case ActionTaken, ActionSnooze, ActionOpen, ActionSkip:
		return action, nil
	}

	return "", fmt.Errorf("%q: %w", name, ErrUnknownAction)
}

// Notifier shows and dismisses user-visible alerts
type Notifier interface {
	Show(ctx context.Context, occurrenceID int32, payload reminder.Payload) error
	Cancel(ctx context.Context, occurrenceID int32) error
}

// Planner is what the handler needs from reminder.Planner
type Planner interface {
	OnFire(ctx context.Context, payload reminder.Payload) error
	OnSnooze(ctx context.Context, payload reminder.Payload) error
	Cancel(ctx context.Context, medicationID, timeOfDay string) error
}

// Handler processes wake-ups and user actions. It holds no state between
// calls; the intake store's upsert by (medication, scheduled time) is what
// makes overlapping calls for one occurrence safe.
type Handler struct {
	planner  Planner
	intakes  db.IntakeStore
	notifier Notifier
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewHandler creates a handler
func NewHandler(planner Planner, intakes db.IntakeStore, notifier Notifier, location *time.Location, now func() time.Time, log zerolog.Logger) *Handler {
	if location == nil {
		location = time.Local
	}

	if now == nil {
		now = time.Now
	}

	return &Handler{
		planner:  planner,
		intakes:  intakes,
		notifier: notifier,
		location: location,
		now:      now,
		log:      log.With().Str("component", "fire").Logger(),
	}
}

// occurrenceID identifies the alert of a time slot
func occurrenceID(payload reminder.Payload) int32 {
	return reminder.RequestKey(payload.MedicationID, payload.TimeOfDay, reminder.PurposeNotify)
}

// HandleWakeUp processes a delivered wake-up. Malformed payloads are dropped
// without effect. A due wake-up also plans the following day's occurrence.
func (h *Handler) HandleWakeUp(ctx context.Context, data []byte) error {
	payload, err := reminder.DecodePayload(data)
	if err != nil {
		metrics.PayloadsDropped.Inc()
		h.log.Warn().Err(err).Msg("dropping malformed wake-up")
		return nil
	}

	log := h.log.With().
		Str("medication_id", payload.MedicationID).
		Str("time_of_day", payload.TimeOfDay).
		Bool("pre_reminder", payload.IsPreReminder).
		Logger()

	kind := "due"
	if payload.IsPreReminder {
		kind = "pre"
	}
	metrics.RemindersFired.WithLabelValues(kind).Inc()

	var errs []error
	if err := h.notifier.Show(ctx, occurrenceID(payload), payload); err != nil {
		log.Error().Err(err).Msg("failed to show alert")
		errs = append(errs, err)
	}

	if !payload.IsPreReminder {
		if err := h.planner.OnFire(ctx, payload); err != nil {
			log.Error().Err(err).Msg("failed to plan next occurrence")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// HandleAction processes a user action on an alert. The intake record is
// written first; if that fails nothing else happens and the error is returned
// so the caller can tell the user.
func (h *Handler) HandleAction(ctx context.Context, action Action, data []byte) error {
	payload, err := reminder.DecodePayload(data)
	if err != nil {
		metrics.PayloadsDropped.Inc()
		h.log.Warn().Err(err).Str("action", string(action)).Msg("dropping malformed action")
		return err
	}

	return h.Act(ctx, action, payload)
}

// Act applies a user action to an already decoded payload
func (h *Handler) Act(ctx context.Context, action Action, payload reminder.Payload) error {
	if err := payload.Validate(); err != nil {
		metrics.PayloadsDropped.Inc()
		return err
	}

	log := h.log.With().
		Str("action", string(action)).
		Str("medication_id", payload.MedicationID).
		Str("time_of_day", payload.TimeOfDay).
		Logger()

	now := h.now().In(h.location)

	var status db.IntakeStatus
	var takenTime *time.Time

	switch action {
	case ActionTaken:
		status = db.IntakeTaken
		takenTime = &now
	case ActionSnooze:
		status = db.IntakeSnoozed
	case ActionOpen:
		status = db.IntakeScheduled
	case ActionSkip:
		status = db.IntakeSkipped
	default:
		return fmt.Errorf("unable to handle %q: %w", action, ErrUnknownAction)
	}

	if err := h.record(ctx, payload, status, takenTime); err != nil {
		return err
	}

	var errs []error
	switch action {
	case ActionTaken, ActionSkip:
		if err := h.planner.Cancel(ctx, payload.MedicationID, payload.TimeOfDay); err != nil {
			errs = append(errs, err)
		}

		if err := h.planner.OnFire(ctx, payload); err != nil {
			errs = append(errs, err)
		}

	case ActionSnooze:
		if err := h.planner.OnSnooze(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if err := h.notifier.Cancel(ctx, occurrenceID(payload)); err != nil {
		log.Warn().Err(err).Msg("failed to dismiss alert")
	}

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("intake recorded but reminders were not updated")
		return err
	}

	log.Info().Str("status", string(status)).Msg("intake recorded")

	return nil
}

func (h *Handler) record(ctx context.Context, payload reminder.Payload, status db.IntakeStatus, takenTime *time.Time) error {
	medicationID, err := uuid.Parse(payload.MedicationID)
	if err != nil {
		return fmt.Errorf("bad medication id %q: %w", payload.MedicationID, reminder.ErrInvalidPayload)
	}

	patientID, err := uuid.Parse(payload.PatientID)
	if err != nil {
		return fmt.Errorf("bad patient id %q: %w", payload.PatientID, reminder.ErrInvalidPayload)
	}

	_, err = h.intakes.UpsertIntake(ctx, &db.IntakeLog{
		IDUser:        patientID,
		MedicationID:  medicationID,
		ScheduledTime: payload.Scheduled(h.location),
		TakenTime:     takenTime,
		Status:        status,
	})
	if err != nil {
		metrics.IntakeUpserts.WithLabelValues(string(status), "error").Inc()
		return fmt.Errorf("failed to record %s intake: %w", status, err)
	}

	metrics.IntakeUpserts.WithLabelValues(string(status), "ok").Inc()

	return nil
}
