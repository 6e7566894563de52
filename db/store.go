package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound occurs when a requested record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// ScheduleStore reads medication schedules
type ScheduleStore interface {
	// ListActiveMedications returns every medication that has not lapsed as of now
	ListActiveMedications(ctx context.Context, now time.Time) ([]*Medication, error)
	// GetMedication by id, ErrNotFound when absent
	GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error)
}

// IntakeStore records dose intake events. All writes go through
// UpsertIntake, keyed by (MedicationID, ScheduledTime), so concurrent writers
// for one occurrence converge on a single record.
type IntakeStore interface {
	// FindIntake by natural key, ErrNotFound when absent
	FindIntake(ctx context.Context, medicationID uuid.UUID, scheduledTime time.Time) (*IntakeLog, error)
	// UpsertIntake creates or merges the record for the log's natural key and returns the stored record
	UpsertIntake(ctx context.Context, log *IntakeLog) (*IntakeLog, error)
	// ListIntakesBetween returns records whose scheduled time lies in [start, end]
	ListIntakesBetween(ctx context.Context, start, end time.Time) ([]*IntakeLog, error)
	// ListIntakeHistory returns the records matching filter, latest scheduled first
	ListIntakeHistory(ctx context.Context, filter IntakeFilter) ([]*IntakeLog, error)
	// DeleteIntakesForMedication removes every record of a medication
	DeleteIntakesForMedication(ctx context.Context, medicationID uuid.UUID) error
}
