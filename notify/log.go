package notify

import (
	"context"

	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/reminder"
)

// Log notifier writes alerts to the log, for running without a pushover token
type Log struct {
	log zerolog.Logger
}

// NewLog creates a log notifier
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "notifier").Logger()}
}

// Show logs the alert
func (l *Log) Show(ctx context.Context, occurrenceID int32, payload reminder.Payload) error {
	l.log.Info().
		Int32("occurrence_id", occurrenceID).
		Str("medication", payload.MedicationName).
		Str("dosage", payload.Dosage).
		Str("time_of_day", reminder.DisplayTimeOfDay(payload.TimeOfDay)).
		Bool("pre_reminder", payload.IsPreReminder).
		Msg("reminder")

	return nil
}

// Cancel logs the dismissal
func (l *Log) Cancel(ctx context.Context, occurrenceID int32) error {
	l.log.Info().Int32("occurrence_id", occurrenceID).Msg("reminder dismissed")
	return nil
}
