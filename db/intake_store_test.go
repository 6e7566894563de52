package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runIntakeStoreTests exercises the behavior every IntakeStore shares
func runIntakeStoreTests(t *testing.T, open func(t *testing.T, opts ...Option) IntakeStore) {
	ctx := context.Background()
	scheduled := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	t.Run("find missing", func(t *testing.T) {
		store := open(t)

		_, err := store.FindIntake(ctx, uuid.New(), scheduled)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert merges by natural key", func(t *testing.T) {
		store := open(t)
		patient := uuid.New()
		medication := uuid.New()
		taken := scheduled.Add(3 * time.Minute)

		first, err := store.UpsertIntake(ctx, &IntakeLog{
			IDUser:        patient,
			MedicationID:  medication,
			ScheduledTime: scheduled,
			TakenTime:     &taken,
			Status:        IntakeTaken,
		})
		require.NoError(t, err)

		second, err := store.UpsertIntake(ctx, &IntakeLog{
			MedicationID:  medication,
			ScheduledTime: scheduled.In(time.FixedZone("x", -3600)),
			Status:        IntakeScheduled,
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, patient, second.IDUser)
		assert.Equal(t, IntakeScheduled, second.Status)
		require.NotNil(t, second.TakenTime)
		assert.True(t, taken.Equal(*second.TakenTime))
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		found, err := store.FindIntake(ctx, medication, scheduled)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
		assert.Equal(t, IntakeScheduled, found.Status)

		logs, err := store.ListIntakesBetween(ctx, scheduled.Add(-time.Hour), scheduled.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("list is bounded", func(t *testing.T) {
		store := open(t)
		medication := uuid.New()

		for _, at := range []time.Time{scheduled.AddDate(0, 0, -1), scheduled, scheduled.Add(12 * time.Hour), scheduled.AddDate(0, 0, 1)} {
			_, err := store.UpsertIntake(ctx, &IntakeLog{IDUser: uuid.New(), MedicationID: medication, ScheduledTime: at, Status: IntakeMissed})
			require.NoError(t, err)
		}

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 1).Add(-time.Millisecond)

		logs, err := store.ListIntakesBetween(ctx, start, end)
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("concurrent upserts converge", func(t *testing.T) {
		store := open(t)
		medication := uuid.New()
		patient := uuid.New()

		statuses := []IntakeStatus{IntakeTaken, IntakeSkipped}
		results := make([]*IntakeLog, len(statuses))
		errs := make([]error, len(statuses))

		var wg sync.WaitGroup
		for i, status := range statuses {
			wg.Add(1)
			go func(i int, status IntakeStatus) {
				defer wg.Done()
				results[i], errs[i] = store.UpsertIntake(ctx, &IntakeLog{
					IDUser:        patient,
					MedicationID:  medication,
					ScheduledTime: scheduled,
					Status:        status,
				})
			}(i, status)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		logs, err := store.ListIntakesBetween(ctx, scheduled, scheduled)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Contains(t, statuses, logs[0].Status)
		assert.Equal(t, results[0].ID, results[1].ID)

		found, err := store.FindIntake(ctx, medication, scheduled)
		require.NoError(t, err)
		assert.Equal(t, logs[0].Status, found.Status)
	})

	t.Run("delete for medication", func(t *testing.T) {
		store := open(t)
		keep := uuid.New()
		drop := uuid.New()

		for _, medication := range []uuid.UUID{keep, drop} {
			_, err := store.UpsertIntake(ctx, &IntakeLog{IDUser: uuid.New(), MedicationID: medication, ScheduledTime: scheduled, Status: IntakeTaken})
			require.NoError(t, err)
		}

		require.NoError(t, store.DeleteIntakesForMedication(ctx, drop))

		_, err := store.FindIntake(ctx, drop, scheduled)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.FindIntake(ctx, keep, scheduled)
		assert.NoError(t, err)
	})

	t.Run("timestamps come from the clock", func(t *testing.T) {
		created := time.Date(2024, 1, 1, 8, 1, 0, 0, time.UTC)
		updated := created.Add(time.Minute)
		now := created
		store := open(t, WithClock(func() time.Time { return now }))
		medication := uuid.New()

		first, err := store.UpsertIntake(ctx, &IntakeLog{IDUser: uuid.New(), MedicationID: medication, ScheduledTime: scheduled, Status: IntakeSnoozed})
		require.NoError(t, err)
		assert.True(t, created.Equal(first.CreatedAt))
		assert.True(t, created.Equal(first.UpdatedAt))

		now = updated
		second, err := store.UpsertIntake(ctx, &IntakeLog{MedicationID: medication, ScheduledTime: scheduled, Status: IntakeTaken})
		require.NoError(t, err)
		assert.True(t, created.Equal(second.CreatedAt))
		assert.True(t, updated.Equal(second.UpdatedAt))
	})

	t.Run("history by patient and medication", func(t *testing.T) {
		store := open(t)
		patient := uuid.New()
		other := uuid.New()
		aspirin := uuid.New()
		insulin := uuid.New()

		records := []*IntakeLog{
			{IDUser: patient, MedicationID: aspirin, ScheduledTime: scheduled.AddDate(0, 0, -1), Status: IntakeMissed},
			{IDUser: patient, MedicationID: aspirin, ScheduledTime: scheduled, Status: IntakeTaken},
			{IDUser: patient, MedicationID: insulin, ScheduledTime: scheduled.Add(4 * time.Hour), Status: IntakeSkipped},
			{IDUser: other, MedicationID: uuid.New(), ScheduledTime: scheduled.Add(time.Hour), Status: IntakeTaken},
		}
		for _, record := range records {
			_, err := store.UpsertIntake(ctx, record)
			require.NoError(t, err)
		}

		logs, err := store.ListIntakeHistory(ctx, IntakeFilter{PatientID: patient})
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, insulin, logs[0].MedicationID)
		assert.True(t, scheduled.Equal(logs[1].ScheduledTime))
		assert.Equal(t, IntakeMissed, logs[2].Status)

		logs, err = store.ListIntakeHistory(ctx, IntakeFilter{PatientID: patient, MedicationID: aspirin})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, IntakeTaken, logs[0].Status)

		logs, err = store.ListIntakeHistory(ctx, IntakeFilter{PatientID: patient, Limit: 1})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, insulin, logs[0].MedicationID)

		logs, err = store.ListIntakeHistory(ctx, IntakeFilter{})
		require.NoError(t, err)
		assert.Len(t, logs, 4)

		logs, err = store.ListIntakeHistory(ctx, IntakeFilter{PatientID: uuid.New()})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}
