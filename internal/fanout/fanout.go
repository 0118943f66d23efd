// Package fanout delivers each appended message to every attached
// streaming subscriber without ever blocking the writer.
//
// Each subscriber owns a bounded queue. Notify performs a non-blocking
// send per subscriber; what happens when a queue is full is decided by
// the configured Policy.
package fanout

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
	"github.com/Olafs-World/agent-chatroom/internal/models"
)

// DefaultBuffer is the per-subscriber queue capacity used when none is set.
const DefaultBuffer = 256

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("fanout closed")

// Policy selects the behavior when a subscriber queue is full.
type Policy int

const (
	// PolicyDisconnect evicts the subscriber. Its stream ends and the
	// client is expected to reconnect and backfill through the poll cursor.
	PolicyDisconnect Policy = iota
	// PolicyDropOldest discards the oldest queued message to make room.
	PolicyDropOldest
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "disconnect":
		return PolicyDisconnect, nil
	case "drop-oldest", "drop_oldest":
		return PolicyDropOldest, nil
	default:
		return 0, errors.New("unknown overflow policy: " + s)
	}
}

func (p Policy) String() string {
	if p == PolicyDropOldest {
		return "drop-oldest"
	}
	return "disconnect"
}

// Options configures a Fanout.
type Options struct {
	Buffer   int
	Overflow Policy
	Logger   zerolog.Logger
}

// Subscriber is one attached streaming connection.
type Subscriber struct {
	ID string

	queue    chan models.Message
	done     chan struct{}
	doneOnce sync.Once
}

// C returns the subscriber's delivery queue.
func (s *Subscriber) C() <-chan models.Message {
	return s.queue
}

// Done is closed when the fanout evicts the subscriber.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) evict() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Fanout tracks the active subscriber set. Its lock is independent of the
// message store's lock; Notify must be called after the store lock is
// released.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool

	buffer int
	policy Policy
	logger zerolog.Logger
}

// New creates a Fanout.
func New(opts Options) *Fanout {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Fanout{
		subs:   make(map[*Subscriber]struct{}),
		buffer: opts.Buffer,
		policy: opts.Overflow,
		logger: opts.Logger.With().Str("component", "fanout").Logger(),
	}
}

// Subscribe attaches a new subscriber.
func (f *Fanout) Subscribe() (*Subscriber, error) {
	sub := &Subscriber{
		ID:    uuid.NewString(),
		queue: make(chan models.Message, f.buffer),
		done:  make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	f.subs[sub] = struct{}{}
	metrics.StreamSubscribers.Set(float64(len(f.subs)))

	return sub, nil
}

// Unsubscribe detaches sub. Calling it more than once is harmless.
func (f *Fanout) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	f.mu.Lock()
	delete(f.subs, sub)
	metrics.StreamSubscribers.Set(float64(len(f.subs)))
	f.mu.Unlock()

	sub.evict()
}

// Notify enqueues msg for every attached subscriber. It never blocks.
func (f *Fanout) Notify(msg models.Message) {
	var overflowed []*Subscriber

	f.mu.RLock()
	for sub := range f.subs {
		if !f.deliver(sub, msg) {
			overflowed = append(overflowed, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range overflowed {
		f.logger.Warn().
			Str("subscriber", sub.ID).
			Int("buffer", f.buffer).
			Msg("subscriber queue full, disconnecting")
		metrics.FanoutDropped.WithLabelValues("disconnect").Inc()
		f.Unsubscribe(sub)
	}
}

// deliver reports false when the subscriber must be evicted.
func (f *Fanout) deliver(sub *Subscriber, msg models.Message) bool {
	select {
	case <-sub.done:
		return true
	default:
	}

	select {
	case sub.queue <- msg:
		return true
	default:
	}

	if f.policy == PolicyDisconnect {
		return false
	}

	// Drop oldest. The consumer may drain concurrently, so both steps stay
	// non-blocking and a lost race simply drops msg for this subscriber.
	select {
	case <-sub.queue:
		metrics.FanoutDropped.WithLabelValues("drop_oldest").Inc()
	default:
	}
	select {
	case sub.queue <- msg:
	default:
		metrics.FanoutDropped.WithLabelValues("drop_newest").Inc()
	}
	return true
}

// Len returns the number of attached subscribers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close evicts every subscriber and rejects further subscriptions.
func (f *Fanout) Close() {
	f.mu.Lock()
	subs := make([]*Subscriber, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.subs = make(map[*Subscriber]struct{})
	f.closed = true
	metrics.StreamSubscribers.Set(0)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.evict()
	}
	f.logger.Info().Int("subscribers", len(subs)).Msg("fanout closed")
}
