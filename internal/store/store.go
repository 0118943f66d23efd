package store

import (
	"github.com/Olafs-World/agent-chatroom/internal/models"
)

// MessageStore defines the room's authoritative message log.
// Log implements it in memory; handlers depend only on this interface.
type MessageStore interface {
	// Append records a message and returns the stored copy.
	Append(agent, text string) models.Message

	// Snapshot returns a point-in-time copy of the whole log.
	Snapshot() []models.Message

	// SliceFrom returns every message at or after index and the cursor to
	// resume from, which is always the log length at the time of the call.
	SliceFrom(index int) ([]models.Message, int)

	Len() int
	Agents() []string
}
