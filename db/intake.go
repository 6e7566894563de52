package db

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IntakeStatus recorded for an occurrence
type IntakeStatus string

const (
	// IntakeTaken the dose was taken
	IntakeTaken IntakeStatus = "taken"
	// IntakeMissed the dose was not taken in time
	IntakeMissed IntakeStatus = "missed"
	// IntakeSkipped the user chose not to take the dose
	IntakeSkipped IntakeStatus = "skipped"
	// IntakeScheduled the occurrence was acknowledged but not yet taken
	IntakeScheduled IntakeStatus = "scheduled"
	// IntakeSnoozed the due alert was deferred
	IntakeSnoozed IntakeStatus = "snoozed"
)

// Valid reports whether s is a known status
func (s IntakeStatus) Valid() bool {
	switch s {
	case IntakeTaken, IntakeMissed, IntakeSkipped, IntakeScheduled, IntakeSnoozed:
		return true
	}

	return false
}

// IntakeLog answers for one occurrence, identified by (MedicationID, ScheduledTime)
type IntakeLog struct {
	ID            uuid.UUID    `json:"id"`
	IDUser        uuid.UUID    `json:"id_user"`
	MedicationID  uuid.UUID    `json:"medication_id"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	TakenTime     *time.Time   `json:"taken_time,omitempty"`
	Status        IntakeStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NaturalKey of the occurrence this log answers for
func (l *IntakeLog) NaturalKey() string {
	return NaturalKey(l.MedicationID, l.ScheduledTime)
}

// NaturalKey for a medication occurrence. Scheduled times compare at millisecond precision.
func NaturalKey(medicationID uuid.UUID, scheduledTime time.Time) string {
	return medicationID.String() + "_" + time.UnixMilli(scheduledTime.UnixMilli()).UTC().Format(time.RFC3339Nano)
}

// mergeIntake applies incoming on top of existing. The existing id and
// creation time survive, and a taken time is never erased by an action that
// doesn't carry one.
func mergeIntake(existing, incoming *IntakeLog, now time.Time) *IntakeLog {
	merged := *incoming
	merged.ScheduledTime = time.UnixMilli(incoming.ScheduledTime.UnixMilli()).UTC()
	merged.UpdatedAt = now

	if existing == nil {
		if merged.ID == uuid.Nil {
			merged.ID = uuid.New()
		}

		merged.CreatedAt = now

		return &merged
	}

	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt

	if merged.IDUser == uuid.Nil {
		merged.IDUser = existing.IDUser
	}

	if merged.TakenTime == nil {
		merged.TakenTime = existing.TakenTime
	}

	return &merged
}

// IntakeFilter narrows an intake history listing. Zero ids match any record
// and a zero Limit returns everything.
type IntakeFilter struct {
	PatientID    uuid.UUID
	MedicationID uuid.UUID
	Limit        int
}

func (f IntakeFilter) matches(log *IntakeLog) bool {
	if f.PatientID != uuid.Nil && log.IDUser != f.PatientID {
		return false
	}

	return f.MedicationID == uuid.Nil || log.MedicationID == f.MedicationID
}

func sortLatestFirst(logs []*IntakeLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].ScheduledTime.After(logs[j].ScheduledTime)
	})
}

func (l *IntakeLog) badgerKey() []byte {
	return badgerKeyForIntake(l.MedicationID, l.ScheduledTime)
}

func badgerKeyForIntake(medicationID uuid.UUID, scheduledTime time.Time) []byte {
	key := badgerPrefixKeyForIntakeMedication(medicationID)

	millis := make([]byte, 8)
	binary.BigEndian.PutUint64(millis, uint64(scheduledTime.UnixMilli()))

	return append(key, millis...)
}

func badgerPrefixKeyForIntakeMedication(medicationID uuid.UUID) []byte {
	return append([]byte("intake:"), medicationID[:]...)
}
