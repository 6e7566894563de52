package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPayload occurs when a wake-up payload is missing fields or carries bad values
	ErrInvalidPayload = errors.New("invalid wake-up payload")
)

// Payload travels with every timer registration and every user action. Times
// are epoch milliseconds; an EndDate of zero or less means the schedule is
// unbounded.
type Payload struct {
	PatientID      string `json:"patientId"`
	MedicationID   string `json:"medicationId"`
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
	TimeOfDay      string `json:"timeOfDay"`
	ScheduledTime  int64  `json:"scheduledTime"`
	StartDate      int64  `json:"startDate"`
	EndDate        int64  `json:"endDate,omitempty"`
	IsPreReminder  bool   `json:"isPreReminder"`
}

// wirePayload mirrors Payload with pointers so absent fields can be told apart from empty ones
type wirePayload struct {
	PatientID      *string `json:"patientId"`
	MedicationID   *string `json:"medicationId"`
	MedicationName *string `json:"medicationName"`
	Dosage         *string `json:"dosage"`
	TimeOfDay      *string `json:"timeOfDay"`
	ScheduledTime  *int64  `json:"scheduledTime"`
	StartDate      *int64  `json:"startDate"`
	EndDate        *int64  `json:"endDate"`
	IsPreReminder  *bool   `json:"isPreReminder"`
}

// Encode the payload for a timer registration
func (p Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to JSON marshal payload for medication %s: %w", p.MedicationID, err)
	}

	return data, nil
}

// DecodePayload parses and validates a wake-up payload. Every field except
// endDate is required.
func DecodePayload(data []byte) (Payload, error) {
	wire := wirePayload{}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Payload{}, fmt.Errorf("failed to JSON unmarshal payload: %v: %w", err, ErrInvalidPayload)
	}

	missing := func(name string) error {
		return fmt.Errorf("payload field %s is missing: %w", name, ErrInvalidPayload)
	}

	switch {
	case wire.PatientID == nil:
		return Payload{}, missing("patientId")
	case wire.MedicationID == nil:
		return Payload{}, missing("medicationId")
	case wire.MedicationName == nil:
		return Payload{}, missing("medicationName")
	case wire.Dosage == nil:
		return Payload{}, missing("dosage")
	case wire.TimeOfDay == nil:
		return Payload{}, missing("timeOfDay")
	case wire.ScheduledTime == nil:
		return Payload{}, missing("scheduledTime")
	case wire.StartDate == nil:
		return Payload{}, missing("startDate")
	case wire.IsPreReminder == nil:
		return Payload{}, missing("isPreReminder")
	}

	p := Payload{
		PatientID:      *wire.PatientID,
		MedicationID:   *wire.MedicationID,
		MedicationName: *wire.MedicationName,
		Dosage:         *wire.Dosage,
		TimeOfDay:      *wire.TimeOfDay,
		ScheduledTime:  *wire.ScheduledTime,
		StartDate:      *wire.StartDate,
		IsPreReminder:  *wire.IsPreReminder,
	}

	if wire.EndDate != nil {
		p.EndDate = *wire.EndDate
	}

	if err := p.Validate(); err != nil {
		return Payload{}, err
	}

	return p, nil
}

// Validate the values of an already decoded payload
func (p Payload) Validate() error {
	if p.PatientID == "" {
		return fmt.Errorf("payload has an empty patientId: %w", ErrInvalidPayload)
	}

	if p.MedicationID == "" {
		return fmt.Errorf("payload has an empty medicationId: %w", ErrInvalidPayload)
	}

	if p.ScheduledTime <= 0 {
		return fmt.Errorf("payload scheduledTime %d is not positive: %w", p.ScheduledTime, ErrInvalidPayload)
	}

	if p.StartDate <= 0 {
		return fmt.Errorf("payload startDate %d is not positive: %w", p.StartDate, ErrInvalidPayload)
	}

	if _, err := ParseTimeOfDay(p.TimeOfDay); err != nil {
		return fmt.Errorf("payload timeOfDay %q: %v: %w", p.TimeOfDay, err, ErrInvalidPayload)
	}

	return nil
}

// Scheduled is the occurrence instant the payload answers for
func (p Payload) Scheduled(loc *time.Location) time.Time {
	return time.UnixMilli(p.ScheduledTime).In(loc)
}

// Start is the schedule's start date
func (p Payload) Start(loc *time.Location) time.Time {
	return time.UnixMilli(p.StartDate).In(loc)
}

// End is the schedule's end date, nil when unbounded
func (p Payload) End(loc *time.Location) *time.Time {
	if p.EndDate <= 0 {
		return nil
	}

	end := time.UnixMilli(p.EndDate).In(loc)
	return &end
}
