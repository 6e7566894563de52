package db

import (
	"time"

	"github.com/google/uuid"
)

// User information. A user is the patient that medications and intake logs belong to.
type User struct {
	ID                   uuid.UUID         `json:"id"`
	Name                 string            `json:"name"`
	PushoverDeviceTokens map[string]string `json:"pushover_device_tokens"`
	CreatedAt            time.Time         `json:"created_at"`
}

// PushoverTokensFor resolves device names to pushover tokens, falling back to
// every known token when none of the names match
func (u *User) PushoverTokensFor(devices []string) []string {
	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		if token, ok := u.PushoverDeviceTokens[device]; ok {
			tokens = append(tokens, token)
		}
	}

	if len(tokens) > 0 {
		return tokens
	}

	for _, token := range u.PushoverDeviceTokens {
		tokens = append(tokens, token)
	}

	return tokens
}

func (u *User) badgerKey() []byte {
	return badgerKeyForUsername(u.Name)
}

func badgerKeyForUsername(username string) []byte {
	return append([]byte("user:"), []byte(username)...)
}
