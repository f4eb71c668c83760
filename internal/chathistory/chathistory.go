// Package chathistory keeps a bounded per-user ring of recent chat turns in
// memory, optionally mirroring each turn to a durable store in the
// background via a batcher so the write never blocks the pipeline.
package chathistory

import (
	"sync"
	"time"

	"github.com/snarg/session-engine/internal/batch"
)

// DefaultCap is the number of turns retained per user (C).
const DefaultCap = 30

// Turn is one exchange in a user's chat history. PhotoRef, if set, is an
// opaque photostore request ID — raw image bytes are never retained here.
type Turn struct {
	Role      string // "user" or "assistant"
	Content   string
	PhotoRef  string
	CreatedAt time.Time
}

// DurableWriter persists turns in the background; internal/chatstore.Store
// satisfies this via its AppendBatch method.
type DurableWriter interface {
	AppendBatch(turns []DurableTurn)
}

// DurableTurn is the shape handed to a DurableWriter, carrying the user ID
// the in-memory Turn doesn't need to.
type DurableTurn struct {
	UserID    string
	Role      string
	Content   string
	PhotoRef  string
	CreatedAt time.Time
}

// Manager holds one bounded chat ring per user.
type Manager struct {
	mu  sync.Mutex
	cap int

	byUser map[string][]Turn

	batcher *batch.Batcher[DurableTurn]
}

// Options configures a new Manager.
type Options struct {
	Cap int // defaults to DefaultCap

	// Durable, if set, receives every added turn via a batcher (size 20 or
	// 5s interval, whichever comes first) for async durable persistence.
	Durable DurableWriter
}

// New constructs an empty Manager.
func New(opts Options) *Manager {
	c := opts.Cap
	if c <= 0 {
		c = DefaultCap
	}
	m := &Manager{cap: c, byUser: make(map[string][]Turn)}
	if opts.Durable != nil {
		m.batcher = batch.NewBatcher[DurableTurn](20, 5*time.Second, opts.Durable.AppendBatch)
	}
	return m
}

// AddTurn appends a turn to userID's ring, dropping the oldest if full, and
// enqueues it for durable persistence if a DurableWriter was configured.
func (m *Manager) AddTurn(userID string, t Turn) {
	m.mu.Lock()
	ring := append(m.byUser[userID], t)
	if len(ring) > m.cap {
		ring = ring[len(ring)-m.cap:]
	}
	m.byUser[userID] = ring
	m.mu.Unlock()

	if m.batcher != nil {
		m.batcher.Add(DurableTurn{
			UserID:    userID,
			Role:      t.Role,
			Content:   t.Content,
			PhotoRef:  t.PhotoRef,
			CreatedAt: t.CreatedAt,
		})
	}
}

// RecentTurns returns userID's turns youngest-last (chronological order),
// filtered to those created within maxAge. A zero maxAge disables the age
// filter. The ring is already stored oldest-first, so this only filters.
func (m *Manager) RecentTurns(userID string, maxAge time.Duration) []Turn {
	m.mu.Lock()
	ring := append([]Turn(nil), m.byUser[userID]...)
	m.mu.Unlock()

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	out := make([]Turn, 0, len(ring))
	for _, t := range ring {
		if maxAge > 0 && t.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ClearUser drops all in-memory turns for userID. Durable history, if any,
// is left untouched.
func (m *Manager) ClearUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
}

// Close flushes and stops the durable batcher, if configured.
func (m *Manager) Close() {
	if m.batcher != nil {
		m.batcher.Stop()
	}
}
