package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gregdel/pushover"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.0xdad.com/tblyler/meditime/reminder"
)

type sent struct {
	message *pushover.Message
	token   string
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []sent
	cancelled []string
	failures  int
	attempts  int
}

func (f *fakeSender) SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("pushover unavailable")
	}

	f.sent = append(f.sent, sent{message: message, token: fmt.Sprint(recipient)})

	return &pushover.Response{Receipt: fmt.Sprintf("receipt-%d", len(f.sent))}, nil
}

func (f *fakeSender) CancelEmergencyNotification(receipt string) (*pushover.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, receipt)

	return &pushover.Response{}, nil
}

type fakeRecipients struct {
	tokens []string
	err    error
}

func (f *fakeRecipients) PushoverTokens(ctx context.Context, patientID, medicationID uuid.UUID) ([]string, error) {
	return f.tokens, f.err
}

func testPayload(pre bool) reminder.Payload {
	return reminder.Payload{
		PatientID:      uuid.New().String(),
		MedicationID:   uuid.New().String(),
		MedicationName: "Aspirin",
		Dosage:         "100mg",
		TimeOfDay:      "20:30",
		ScheduledTime:  time.Date(2024, 1, 1, 20, 30, 0, 0, time.UTC).UnixMilli(),
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		IsPreReminder:  pre,
	}
}

func newTestPushover(app sender, tokens ...string) *Pushover {
	p := newPushover(app, &fakeRecipients{tokens: tokens}, time.UTC, zerolog.Nop())
	p.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return p
}

func TestMessageDue(t *testing.T) {
	m := Message(testPayload(false), time.UTC)

	assert.Equal(t, "Time to take Aspirin", m.Title)
	assert.Equal(t, "100mg at 8:30 PM", m.Message)
	assert.Equal(t, pushover.PriorityEmergency, m.Priority)
	assert.Equal(t, time.Minute, m.Retry)
	assert.Equal(t, time.Hour, m.Expire)
	assert.Equal(t, time.Date(2024, 1, 1, 20, 30, 0, 0, time.UTC).Unix(), m.Timestamp)
}

func TestMessagePreReminder(t *testing.T) {
	m := Message(testPayload(true), time.UTC)

	assert.Equal(t, "Aspirin due soon", m.Title)
	assert.Equal(t, pushover.PriorityHigh, m.Priority)
}

func TestShowSendsToEveryToken(t *testing.T) {
	app := &fakeSender{}
	p := newTestPushover(app, "phone", "tablet")

	require.NoError(t, p.Show(context.Background(), 1, testPayload(false)))
	assert.Len(t, app.sent, 2)
	assert.Empty(t, app.cancelled)
}

func TestShowReplacesPreviousAlert(t *testing.T) {
	app := &fakeSender{}
	p := newTestPushover(app, "phone")

	require.NoError(t, p.Show(context.Background(), 1, testPayload(true)))
	require.NoError(t, p.Show(context.Background(), 1, testPayload(false)))

	assert.Equal(t, []string{"receipt-1"}, app.cancelled)
}

func TestCancelRetractsOnce(t *testing.T) {
	app := &fakeSender{}
	p := newTestPushover(app, "phone")

	require.NoError(t, p.Show(context.Background(), 1, testPayload(false)))
	require.NoError(t, p.Cancel(context.Background(), 1))
	require.NoError(t, p.Cancel(context.Background(), 1))

	assert.Equal(t, []string{"receipt-1"}, app.cancelled)
}

func TestShowRetriesTransientFailures(t *testing.T) {
	app := &fakeSender{failures: 2}
	p := newTestPushover(app, "phone")

	require.NoError(t, p.Show(context.Background(), 1, testPayload(false)))
	assert.Equal(t, 3, app.attempts)
	assert.Len(t, app.sent, 1)
}

func TestShowGivesUp(t *testing.T) {
	app := &fakeSender{failures: 100}
	p := newTestPushover(app, "phone")

	err := p.Show(context.Background(), 1, testPayload(false))
	require.Error(t, err)
	assert.Equal(t, maxSendRetries+1, app.attempts)
}

func TestShowWithoutTokens(t *testing.T) {
	app := &fakeSender{}
	p := newTestPushover(app)

	require.NoError(t, p.Show(context.Background(), 1, testPayload(false)))
	assert.Zero(t, app.attempts)
}

func TestShowLookupFailure(t *testing.T) {
	p := newPushover(&fakeSender{}, &fakeRecipients{err: errors.New("no such patient")}, time.UTC, zerolog.Nop())

	assert.Error(t, p.Show(context.Background(), 1, testPayload(false)))
}

func TestLogNotifier(t *testing.T) {
	l := NewLog(zerolog.Nop())

	assert.NoError(t, l.Show(context.Background(), 1, testPayload(true)))
	assert.NoError(t, l.Cancel(context.Background(), 1))
}
