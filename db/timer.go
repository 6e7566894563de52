package db

import (
	"encoding/binary"
	"time"
)

// TimerEntry is a pending wake-up persisted so it survives a restart
type TimerEntry struct {
	Key     int32     `json:"key"`
	At      time.Time `json:"at"`
	Payload []byte    `json:"payload"`
	Exact   bool      `json:"exact"`
}

func (t *TimerEntry) badgerKey() []byte {
	return badgerKeyForTimer(t.Key)
}

func badgerKeyForTimer(key int32) []byte {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, uint32(key))

	return append([]byte("timer:"), raw...)
}
