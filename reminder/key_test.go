package reminder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestKeyIsStable(t *testing.T) {
	a := RequestKey("7b1c1c3e-4b8e-4f55-9d0b-2f1f3b0c9a11", "08:00", PurposeDue)
	b := RequestKey("7b1c1c3e-4b8e-4f55-9d0b-2f1f3b0c9a11", "08:00", PurposeDue)
	assert.Equal(t, a, b)
}

func TestRequestKeyPurposesDiffer(t *testing.T) {
	keys := map[int32]Purpose{}
	for _, purpose := range []Purpose{PurposeDue, PurposePre, PurposeSnooze, PurposeNotify} {
		key := RequestKey("m1", "08:00", purpose)
		other, seen := keys[key]
		assert.False(t, seen, "%s collides with %s", purpose, other)
		keys[key] = purpose
	}
}

func TestRequestKeyNoCollisionsInSample(t *testing.T) {
	keys := map[int32]string{}
	for med := 0; med < 50; med++ {
		medicationID := fmt.Sprintf("medication-%03d", med)
		for slot := 0; slot < 8; slot++ {
			timeOfDay := fmt.Sprintf("%02d:%02d", slot*3, (slot*7)%60)
			for _, purpose := range TimerPurposes {
				id := medicationID + "/" + timeOfDay + "/" + string(purpose)
				key := RequestKey(medicationID, timeOfDay, purpose)
				if other, seen := keys[key]; seen {
					t.Fatalf("%s collides with %s", id, other)
				}
				keys[key] = id
			}
		}
	}

	assert.Len(t, keys, 50*8*len(TimerPurposes))
}
