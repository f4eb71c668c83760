// Package eventbus fans server-sent events out to subscribers scoped by user
// and topic, buffering a bounded backlog per (user, topic) pair for
// subscribers that haven't connected yet or that reconnect after a gap.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPendingCap bounds how many undelivered events a (user, topic) pair
// retains before dropping the oldest.
const DefaultPendingCap = 200

// Event is one message placed on the bus.
type Event struct {
	Topic     string
	Data      any
	Timestamp time.Time
}

type key struct {
	userID string
	topic  string
}

// Bus is a per-(userId, topic) publish/subscribe fan-out with a bounded
// pending queue for late subscribers.
type Bus struct {
	mu          sync.Mutex
	pendingCap  int
	subscribers map[key]map[chan Event]struct{}
	pending     map[key][]Event
	log         zerolog.Logger
}

// Options configures a new Bus.
type Options struct {
	PendingCap int // defaults to DefaultPendingCap
	Log        zerolog.Logger
}

// New constructs an empty Bus.
func New(opts Options) *Bus {
	cap := opts.PendingCap
	if cap <= 0 {
		cap = DefaultPendingCap
	}
	return &Bus{
		pendingCap:  cap,
		subscribers: make(map[key]map[chan Event]struct{}),
		pending:     make(map[key][]Event),
		log:         opts.Log.With().Str("component", "eventbus").Logger(),
	}
}

// Broadcast publishes an event for (userID, topic). It's delivered to every
// live subscriber with a non-blocking send; a subscriber whose channel is
// full misses it. Only when no subscriber accepted it (none attached, or
// every channel full) is it appended to the pending backlog that the next
// Subscribe replays.
func (b *Bus) Broadcast(userID, topic string, data any) {
	ev := Event{Topic: topic, Data: data, Timestamp: time.Now()}
	k := key{userID, topic}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := false
	for ch := range b.subscribers[k] {
		select {
		case ch <- ev:
			delivered = true
		default:
			b.log.Warn().Str("user_id", userID).Str("topic", topic).Msg("subscriber channel full, dropping live delivery")
		}
	}
	if !delivered {
		q := append(b.pending[k], ev)
		if len(q) > b.pendingCap {
			q = q[len(q)-b.pendingCap:]
		}
		b.pending[k] = q
	}
}

// Subscribe registers a new subscriber for (userID, topic) and returns a
// channel that first replays any pending backlog (in order), then receives
// live events. The returned cancel function must be called to unsubscribe.
func (b *Bus) Subscribe(userID, topic string, bufSize int) (ch <-chan Event, cancel func()) {
	if bufSize <= 0 {
		bufSize = DefaultPendingCap
	}
	k := key{userID, topic}
	c := make(chan Event, bufSize)

	b.mu.Lock()
	// The backlog is loaded into c before it's registered as a live
	// subscriber, all under the lock, so a concurrent Broadcast can't slip a
	// newer event into c ahead of an older queued one.
	for _, ev := range b.pending[k] {
		select {
		case c <- ev:
		default:
		}
	}
	delete(b.pending, k)
	if b.subscribers[k] == nil {
		b.subscribers[k] = make(map[chan Event]struct{})
	}
	b.subscribers[k][c] = struct{}{}
	b.mu.Unlock()

	cancelFn := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[k]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(b.subscribers, k)
			}
		}
	}
	return c, cancelFn
}

// ClearPending discards the backlog for (userID, topic) without delivering
// it — used when a session is torn down and its queued events are no longer
// relevant to any future subscriber.
func (b *Bus) ClearPending(userID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, key{userID, topic})
}

// PendingLen reports how many undelivered events are currently queued for
// (userID, topic). Callers use this to decide whether a pending-queue flush
// should suppress a history replay; there is an inherent race between this
// check and the following Subscribe call, which is acceptable here since the
// two are never more than a few instructions apart and a history replay
// duplicating one in-flight message is harmless.
func (b *Bus) PendingLen(userID, topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[key{userID, topic}])
}

// SubscriberCount returns the total number of live subscribers across every
// (user, topic) pair, for metrics reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// PendingCount returns the total number of undelivered events queued across
// every (user, topic) pair, for metrics reporting.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.pending {
		n += len(q)
	}
	return n
}

// ClearUser discards all subscribers and pending state for every topic
// belonging to userID — used on final (non-graceful) user removal.
func (b *Bus) ClearUser(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.subscribers {
		if k.userID == userID {
			delete(b.subscribers, k)
		}
	}
	for k := range b.pending {
		if k.userID == userID {
			delete(b.pending, k)
		}
	}
}
