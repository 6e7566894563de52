package fire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/reminder"
)

type fakePlanner struct {
	calls   []string
	onFire  []reminder.Payload
	fireErr error
}

func (f *fakePlanner) OnFire(ctx context.Context, payload reminder.Payload) error {
	f.calls = append(f.calls, "fire")
	f.onFire = append(f.onFire, payload)
	return f.fireErr
}

func (f *fakePlanner) OnSnooze(ctx context.Context, payload reminder.Payload) error {
	f.calls = append(f.calls, "snooze")
	return nil
}

func (f *fakePlanner) Cancel(ctx context.Context, medicationID, timeOfDay string) error {
	f.calls = append(f.calls, "cancel")
	return nil
}

type fakeNotifier struct {
	shown     []reminder.Payload
	cancelled []int32
	showErr   error
}

func (f *fakeNotifier) Show(ctx context.Context, occurrenceID int32, payload reminder.Payload) error {
	f.shown = append(f.shown, payload)
	return f.showErr
}

func (f *fakeNotifier) Cancel(ctx context.Context, occurrenceID int32) error {
	f.cancelled = append(f.cancelled, occurrenceID)
	return nil
}

type memIntakes struct {
	logs map[string]*db.IntakeLog
	err  error
}

func newMemIntakes() *memIntakes {
	return &memIntakes{logs: map[string]*db.IntakeLog{}}
}

func (m *memIntakes) FindIntake(ctx context.Context, medicationID uuid.UUID, scheduledTime time.Time) (*db.IntakeLog, error) {
	log, ok := m.logs[db.NaturalKey(medicationID, scheduledTime)]
	if !ok {
		return nil, db.ErrNotFound
	}

	return log, nil
}

func (m *memIntakes) UpsertIntake(ctx context.Context, log *db.IntakeLog) (*db.IntakeLog, error) {
	if m.err != nil {
		return nil, m.err
	}

	key := log.NaturalKey()
	if existing, ok := m.logs[key]; ok && log.TakenTime == nil {
		log.TakenTime = existing.TakenTime
	}

	m.logs[key] = log

	return log, nil
}

func (m *memIntakes) ListIntakesBetween(ctx context.Context, start, end time.Time) ([]*db.IntakeLog, error) {
	return nil, nil
}

func (m *memIntakes) ListIntakeHistory(ctx context.Context, filter db.IntakeFilter) ([]*db.IntakeLog, error) {
	return nil, nil
}

func (m *memIntakes) DeleteIntakesForMedication(ctx context.Context, medicationID uuid.UUID) error {
	return nil
}

var (
	scheduledAt = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	actedAt     = time.Date(2024, 1, 1, 8, 3, 0, 0, time.UTC)
)

func testPayload(pre bool) reminder.Payload {
	return reminder.Payload{
		PatientID:      uuid.New().String(),
		MedicationID:   uuid.New().String(),
		MedicationName: "Aspirin",
		Dosage:         "100mg",
		TimeOfDay:      "08:00",
		ScheduledTime:  scheduledAt.UnixMilli(),
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		IsPreReminder:  pre,
	}
}

func encode(t *testing.T, payload reminder.Payload) []byte {
	t.Helper()

	data, err := payload.Encode()
	require.NoError(t, err)

	return data
}

func newTestHandler() (*Handler, *fakePlanner, *memIntakes, *fakeNotifier) {
	planner := &fakePlanner{}
	intakes := newMemIntakes()
	notifier := &fakeNotifier{}

	h := NewHandler(planner, intakes, notifier, time.UTC, func() time.Time { return actedAt }, zerolog.Nop())

	return h, planner, intakes, notifier
}

func (m *memIntakes) only(t *testing.T, payload reminder.Payload) *db.IntakeLog {
	t.Helper()

	require.Len(t, m.logs, 1)
	log, err := m.FindIntake(context.Background(), uuid.MustParse(payload.MedicationID), scheduledAt)
	require.NoError(t, err)

	return log
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"taken", "snooze", "open", "skip"} {
		action, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, Action(name), action)
	}

	_, err := ParseAction("dance")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestHandleWakeUpDue(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()
	payload := testPayload(false)

	require.NoError(t, h.HandleWakeUp(context.Background(), encode(t, payload)))

	require.Len(t, notifier.shown, 1)
	assert.Equal(t, payload, notifier.shown[0])
	assert.Equal(t, []string{"fire"}, planner.calls)
	assert.Empty(t, intakes.logs)
}

func TestHandleWakeUpPreReminder(t *testing.T) {
	h, planner, _, notifier := newTestHandler()

	require.NoError(t, h.HandleWakeUp(context.Background(), encode(t, testPayload(true))))

	assert.Len(t, notifier.shown, 1)
	assert.Empty(t, planner.calls)
}

func TestHandleWakeUpDropsMalformed(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()

	require.NoError(t, h.HandleWakeUp(context.Background(), []byte(`{"medicationId":"m1"}`)))
	require.NoError(t, h.HandleWakeUp(context.Background(), []byte(`garbage`)))

	assert.Empty(t, notifier.shown)
	assert.Empty(t, planner.calls)
	assert.Empty(t, intakes.logs)
}

func TestHandleWakeUpPlansEvenWhenAlertFails(t *testing.T) {
	h, planner, _, notifier := newTestHandler()
	notifier.showErr = errors.New("pushover down")

	err := h.HandleWakeUp(context.Background(), encode(t, testPayload(false)))
	assert.Error(t, err)
	assert.Equal(t, []string{"fire"}, planner.calls)
}

func TestActTaken(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()
	payload := testPayload(false)

	require.NoError(t, h.HandleAction(context.Background(), ActionTaken, encode(t, payload)))

	log := intakes.only(t, payload)
	assert.Equal(t, db.IntakeTaken, log.Status)
	require.NotNil(t, log.TakenTime)
	assert.Equal(t, actedAt, *log.TakenTime)
	assert.Equal(t, uuid.MustParse(payload.PatientID), log.IDUser)

	assert.Equal(t, []string{"cancel", "fire"}, planner.calls)
	assert.Equal(t, []int32{occurrenceID(payload)}, notifier.cancelled)
}

func TestActSkip(t *testing.T) {
	h, planner, intakes, _ := newTestHandler()
	payload := testPayload(false)

	require.NoError(t, h.Act(context.Background(), ActionSkip, payload))

	log := intakes.only(t, payload)
	assert.Equal(t, db.IntakeSkipped, log.Status)
	assert.Nil(t, log.TakenTime)
	assert.Equal(t, []string{"cancel", "fire"}, planner.calls)
}

func TestActSnooze(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()
	payload := testPayload(false)

	require.NoError(t, h.Act(context.Background(), ActionSnooze, payload))

	assert.Equal(t, db.IntakeSnoozed, intakes.only(t, payload).Status)
	assert.Equal(t, []string{"snooze"}, planner.calls)
	assert.Len(t, notifier.cancelled, 1)
}

func TestActOpen(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()
	payload := testPayload(true)

	require.NoError(t, h.Act(context.Background(), ActionOpen, payload))

	assert.Equal(t, db.IntakeScheduled, intakes.only(t, payload).Status)
	assert.Empty(t, planner.calls)
	assert.Len(t, notifier.cancelled, 1)
}

func TestActKeepsTakenTimeAcrossActions(t *testing.T) {
	h, _, intakes, _ := newTestHandler()
	payload := testPayload(false)

	require.NoError(t, h.Act(context.Background(), ActionTaken, payload))
	require.NoError(t, h.Act(context.Background(), ActionOpen, payload))

	log := intakes.only(t, payload)
	assert.Equal(t, db.IntakeScheduled, log.Status)
	require.NotNil(t, log.TakenTime)
}

func TestActRecordFailureStopsEverything(t *testing.T) {
	h, planner, intakes, notifier := newTestHandler()
	intakes.err = errors.New("disk full")

	err := h.Act(context.Background(), ActionTaken, testPayload(false))
	assert.Error(t, err)
	assert.Empty(t, planner.calls)
	assert.Empty(t, notifier.cancelled)
}

func TestActPlannerFailureIsReported(t *testing.T) {
	h, planner, intakes, _ := newTestHandler()
	planner.fireErr = errors.New("timer down")
	payload := testPayload(false)

	err := h.Act(context.Background(), ActionTaken, payload)
	assert.Error(t, err)
	assert.Equal(t, db.IntakeTaken, intakes.only(t, payload).Status)
}

func TestActRejectsInvalidPayload(t *testing.T) {
	h, _, intakes, _ := newTestHandler()
	payload := testPayload(false)
	payload.PatientID = ""

	err := h.Act(context.Background(), ActionTaken, payload)
	assert.ErrorIs(t, err, reminder.ErrInvalidPayload)
	assert.Empty(t, intakes.logs)

	err = h.HandleAction(context.Background(), ActionTaken, []byte(`{}`))
	assert.ErrorIs(t, err, reminder.ErrInvalidPayload)
}

func TestActUnknownAction(t *testing.T) {
	h, _, intakes, _ := newTestHandler()

	err := h.Act(context.Background(), Action("dance"), testPayload(false))
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Empty(t, intakes.logs)
}
