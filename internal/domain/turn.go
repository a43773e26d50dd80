package domain

import (
	"encoding/json"
	"time"
)

// Roles a turn can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a session transcript.
type Turn struct {
	ID        string
	SessionID string
	Role      string
	Kind      string // intent of the turn, or "progress"
	Text      string
	Payload   json.RawMessage
	CreatedAt time.Time
}
