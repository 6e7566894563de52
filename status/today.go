package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"git.0xdad.com/tblyler/meditime/db"
)

// MedicationLister reads a patient's medications
type MedicationLister interface {
	GetUserByID(id uuid.UUID) (*db.User, error)
	ListMedicationsForUser(user *db.User) ([]*db.Medication, error)
}

// Today reads a patient's schedules and today's intake logs and resolves them
type Today struct {
	medications MedicationLister
	intakes     db.IntakeStore
	resolver    *Resolver
	location    *time.Location
	now         func() time.Time
}

// NewToday creates the service
func NewToday(medications MedicationLister, intakes db.IntakeStore, resolver *Resolver, location *time.Location, now func() time.Time) *Today {
	if location == nil {
		location = time.Local
	}

	if now == nil {
		now = time.Now
	}

	return &Today{
		medications: medications,
		intakes:     intakes,
		resolver:    resolver,
		location:    location,
		now:         now,
	}
}

// ForPatient resolves the patient's occurrences for the current day
func (t *Today) ForPatient(ctx context.Context, patientID uuid.UUID) ([]Occurrence, error) {
	user, err := t.medications.GetUserByID(patientID)
	if err != nil {
		return nil, err
	}

	return t.ForUser(ctx, user)
}

// ForUser resolves the user's occurrences for the current day
func (t *Today) ForUser(ctx context.Context, user *db.User) ([]Occurrence, error) {
	now := t.now().In(t.location)
	start, end := TodayRange(now)

	medications, err := t.medications.ListMedicationsForUser(user)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications for user %s: %w", user.Name, err)
	}

	logs, err := t.intakes.ListIntakesBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list today's intakes: %w", err)
	}

	return t.resolver.ResolveToday(medications, logs, now), nil
}

// HistoryEntry is one recorded intake. Medication is nil when the record
// outlived its medication.
type HistoryEntry struct {
	Log        *db.IntakeLog
	Medication *db.Medication
}

// History lists the patient's recorded intakes, latest first. A non-nil
// medicationID narrows it to one medication and limit caps the count when
// positive.
func (t *Today) History(ctx context.Context, patientID, medicationID uuid.UUID, limit int) ([]HistoryEntry, error) {
	user, err := t.medications.GetUserByID(patientID)
	if err != nil {
		return nil, err
	}

	return t.HistoryForUser(ctx, user, medicationID, limit)
}

// HistoryForUser is History for an already loaded user
func (t *Today) HistoryForUser(ctx context.Context, user *db.User, medicationID uuid.UUID, limit int) ([]HistoryEntry, error) {
	medications, err := t.medications.ListMedicationsForUser(user)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications for user %s: %w", user.Name, err)
	}

	byID := make(map[uuid.UUID]*db.Medication, len(medications))
	for _, medication := range medications {
		byID[medication.ID] = medication
	}

	logs, err := t.intakes.ListIntakeHistory(ctx, db.IntakeFilter{
		PatientID:    user.ID,
		MedicationID: medicationID,
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list intake history for user %s: %w", user.Name, err)
	}

	entries := make([]HistoryEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, HistoryEntry{Log: log, Medication: byID[log.MedicationID]})
	}

	return entries, nil
}
