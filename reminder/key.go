package reminder

import (
	"hash/fnv"
)

// Purpose distinguishes the wake-ups registered for one medication time slot
type Purpose string

const (
	// PurposeDue is the alert at the scheduled instant
	PurposeDue Purpose = "main"
	// PurposePre is the advisory alert ahead of the scheduled instant
	PurposePre Purpose = "pre"
	// PurposeSnooze is the one-shot deferral of a due alert
	PurposeSnooze Purpose = "snooze"
	// PurposeNotify identifies the user-visible alert for a slot
	PurposeNotify Purpose = "notify"
)

// TimerPurposes are the purposes that own a timer registration
var TimerPurposes = []Purpose{PurposeDue, PurposePre, PurposeSnooze}

// RequestKey derives the stable identifier of a registration. The same
// inputs always produce the same key, across restarts, so a registration can
// be replaced or cancelled without remembering a handle.
func RequestKey(medicationID, timeOfDay string, purpose Purpose) int32 {
	h := fnv.New32a()
	// hash.Hash never returns an error from Write
	_, _ = h.Write([]byte(medicationID))
	_, _ = h.Write([]byte(timeOfDay))
	_, _ = h.Write([]byte(purpose))

	return int32(h.Sum32())
}
