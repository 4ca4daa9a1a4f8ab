package types

import (
	"errors"
	"time"
)

// Role identifies the speaker of a memory turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MemoryTurn is one exchange in a chat session. Turns are append-only:
// they are created once, never mutated, and queried by recency and
// similarity.
type MemoryTurn struct {
	ID        string
	SessionID string
	Role      Role
	Text      string
	Timestamp time.Time
}

// Validate checks the turn before it is embedded and stored
func (t *MemoryTurn) Validate() error {
	if t.SessionID == "" {
		return errors.New("session ID is required")
	}

	if t.Role != RoleUser && t.Role != RoleAssistant {
		return errors.New("invalid role")
	}

	if t.Text == "" {
		return errors.New("turn text cannot be empty")
	}

	return nil
}
