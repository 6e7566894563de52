// Package notify shows and retracts user-visible reminder alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gregdel/pushover"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/metrics"
	"git.0xdad.com/tblyler/meditime/reminder"
)

const (
	// pushover re-sends an unacknowledged emergency alert every retry until expire
	emergencyRetry  = time.Minute
	emergencyExpire = time.Hour
	maxSendRetries  = 3
)

// sender is the part of the pushover client the notifier uses
type sender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
	CancelEmergencyNotification(receipt string) (*pushover.Response, error)
}

// RecipientLookup resolves the pushover tokens a medication's alerts go to
type RecipientLookup interface {
	PushoverTokens(ctx context.Context, patientID, medicationID uuid.UUID) ([]string, error)
}

// Pushover notifier. Pre-reminders go out at high priority; due alerts go out
// at emergency priority, which keeps nagging until acknowledged or cancelled.
type Pushover struct {
	app        sender
	recipients RecipientLookup
	location   *time.Location
	log        zerolog.Logger
	backoff    func() backoff.BackOff

	mu       sync.Mutex
	receipts map[int32][]string
}

// NewPushover creates a notifier for the pushover application apiToken
func NewPushover(apiToken string, recipients RecipientLookup, location *time.Location, log zerolog.Logger) *Pushover {
	return newPushover(pushover.New(apiToken), recipients, location, log)
}

func newPushover(app sender, recipients RecipientLookup, location *time.Location, log zerolog.Logger) *Pushover {
	if location == nil {
		location = time.Local
	}

	return &Pushover{
		app:        app,
		recipients: recipients,
		location:   location,
		log:        log.With().Str("component", "pushover").Logger(),
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		receipts: make(map[int32][]string),
	}
}

// Message builds the pushover message for a payload
func Message(payload reminder.Payload, location *time.Location) *pushover.Message {
	body := fmt.Sprintf("%s at %s", payload.Dosage, reminder.DisplayTimeOfDay(payload.TimeOfDay))

	var message *pushover.Message
	if payload.IsPreReminder {
		message = pushover.NewMessageWithTitle(body, payload.MedicationName+" due soon")
		message.Priority = pushover.PriorityHigh
	} else {
		message = pushover.NewMessageWithTitle(body, "Time to take "+payload.MedicationName)
		message.Priority = pushover.PriorityEmergency
		message.Retry = emergencyRetry
		message.Expire = emergencyExpire
	}

	message.Timestamp = payload.Scheduled(location).Unix()

	return message
}

// Show the alert for an occurrence, replacing the one already shown under occurrenceID
func (p *Pushover) Show(ctx context.Context, occurrenceID int32, payload reminder.Payload) error {
	patientID, err := uuid.Parse(payload.PatientID)
	if err != nil {
		return fmt.Errorf("bad patient id %q: %w", payload.PatientID, err)
	}

	medicationID, err := uuid.Parse(payload.MedicationID)
	if err != nil {
		return fmt.Errorf("bad medication id %q: %w", payload.MedicationID, err)
	}

	tokens, err := p.recipients.PushoverTokens(ctx, patientID, medicationID)
	if err != nil {
		return fmt.Errorf("failed to look up pushover tokens for medication %s: %w", payload.MedicationID, err)
	}

	if len(tokens) == 0 {
		p.log.Warn().Str("medication_id", payload.MedicationID).Msg("no pushover tokens, alert not sent")
		return nil
	}

	if err := p.Cancel(ctx, occurrenceID); err != nil {
		p.log.Warn().Err(err).Int32("occurrence_id", occurrenceID).Msg("failed to retract previous alert")
	}

	message := Message(payload, p.location)

	var receipts []string
	var errs []error
	for _, token := range tokens {
		recipient := pushover.NewRecipient(token)

		var response *pushover.Response
		err := backoff.Retry(func() error {
			var err error
			response, err = p.app.SendMessage(message, recipient)
			return err
		}, backoff.WithContext(backoff.WithMaxRetries(p.backoff(), maxSendRetries), ctx))

		if err != nil {
			metrics.NotificationsSent.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("failed to send pushover alert for medication %s: %w", payload.MedicationID, err))
			continue
		}

		metrics.NotificationsSent.WithLabelValues("sent").Inc()

		if response != nil && response.Receipt != "" {
			receipts = append(receipts, response.Receipt)
		}
	}

	if len(receipts) > 0 {
		p.mu.Lock()
		p.receipts[occurrenceID] = receipts
		p.mu.Unlock()
	}

	p.log.Info().
		Str("medication_id", payload.MedicationID).
		Str("time_of_day", payload.TimeOfDay).
		Bool("pre_reminder", payload.IsPreReminder).
		Int("recipients", len(tokens)).
		Msg("alert sent")

	return errors.Join(errs...)
}

// Cancel retracts the emergency alerts shown under occurrenceID. Regular
// priority messages can't be retracted and are left as is.
func (p *Pushover) Cancel(ctx context.Context, occurrenceID int32) error {
	p.mu.Lock()
	receipts := p.receipts[occurrenceID]
	delete(p.receipts, occurrenceID)
	p.mu.Unlock()

	if len(receipts) == 0 {
		p.log.Debug().Int32("occurrence_id", occurrenceID).Msg("no retractable alert")
		return nil
	}

	var errs []error
	for _, receipt := range receipts {
		if _, err := p.app.CancelEmergencyNotification(receipt); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel pushover receipt %s: %w", receipt, err))
		}
	}

	return errors.Join(errs...)
}
