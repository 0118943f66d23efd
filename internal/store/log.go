package store

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Olafs-World/agent-chatroom/internal/models"
)

// Log is the in-memory, append-only message log for the room.
//
// Every read and write goes through mu, so an append is never observed
// half-applied and concurrent appends never lose an entry.
type Log struct {
	mu       sync.RWMutex
	messages []models.Message
	agents   map[string]struct{}
	now      func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		agents: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Append assigns the next index, an ID and the arrival time, then stores
// the message. The returned copy is what gets echoed to the writer and
// fanned out to subscribers.
func (l *Log) Append(agent, text string) models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := models.Message{
		ID:        ulid.Make().String(),
		Index:     len(l.messages),
		Agent:     agent,
		Text:      text,
		Timestamp: l.now().UTC(),
	}
	l.messages = append(l.messages, msg)
	l.agents[agent] = struct{}{}

	return msg
}

// Snapshot returns a copy of the entire log.
func (l *Log) Snapshot() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// SliceFrom returns messages at or after index together with the log length.
// An index at or past the end yields an empty (non-nil) slice.
func (l *Log) SliceFrom(index int) ([]models.Message, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	next := len(l.messages)
	if index < 0 {
		index = 0
	}
	if index >= next {
		return []models.Message{}, next
	}

	out := make([]models.Message, next-index)
	copy(out, l.messages[index:])
	return out, next
}

// Len returns the number of stored messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Agents returns the distinct agent names seen so far, sorted.
func (l *Log) Agents() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.agents))
	for name := range l.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
