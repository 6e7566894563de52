package db

import (
	"time"

	"github.com/google/uuid"
)

// FrequencyType of a medication schedule
type FrequencyType string

const (
	// FrequencyDaily doses every day at each time of day
	FrequencyDaily FrequencyType = "daily"
	// FrequencyHourly doses every FrequencyValue hours
	FrequencyHourly FrequencyType = "hourly"
	// FrequencySelectedDays doses only on SelectedWeekdays
	FrequencySelectedDays FrequencyType = "selected_days"
)

// Medication schedule for a user. StartDate and EndDate are calendar days,
// both inclusive, stored as midnight in the configured location. A nil
// EndDate never lapses.
type Medication struct {
	IDUser                  uuid.UUID        `json:"id_user"`
	ID                      uuid.UUID        `json:"id"`
	Name                    string           `json:"name"`
	Dosage                  string           `json:"dosage"`
	StomachCondition        string           `json:"stomach_condition"`
	Notes                   string           `json:"notes,omitempty"`
	StartDate               time.Time        `json:"start_date"`
	EndDate                 *time.Time       `json:"end_date,omitempty"`
	FrequencyType           FrequencyType    `json:"frequency_type"`
	FrequencyValue          uint             `json:"frequency_value,omitempty"`
	SelectedWeekdays        []time.Weekday   `json:"selected_weekdays,omitempty"`
	Times                   []MedicationTime `json:"times"`
	IntervalPushoverDevices []string         `json:"interval_pushover_devices"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// MedicationTime is one canonical "HH:mm" time of day of a medication
type MedicationTime struct {
	ID           uuid.UUID `json:"id"`
	MedicationID uuid.UUID `json:"medication_id"`
	TimeOfDay    string    `json:"time_of_day"`
}

// Lapsed reports whether the medication's end date is before day's calendar date
func (m *Medication) Lapsed(day time.Time) bool {
	if m.EndDate == nil {
		return false
	}

	year, month, date := day.Date()
	startOfDay := time.Date(year, month, date, 0, 0, 0, 0, day.Location())

	return m.EndDate.Before(startOfDay)
}

func (m *Medication) badgerKey() []byte {
	return append(append([]byte("medication:"), m.IDUser[:]...), m.ID[:]...)
}

func badgerPrefixKeyForMedicationUser(user *User) []byte {
	return append([]byte("medication:"), user.ID[:]...)
}

func badgerIndexKeyForMedication(id uuid.UUID) []byte {
	return append([]byte("medication_index:"), id[:]...)
}
