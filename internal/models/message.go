package models

import "time"

// Message represents a chat message in the room log.
type Message struct {
	ID        string    `json:"id"`    // ULID
	Index     int       `json:"index"` // Position in the log
	Agent     string    `json:"agent"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"` // UTC
}
