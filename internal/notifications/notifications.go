// Package notifications keeps a bounded, age-filtered backlog of
// notifications pushed up from a user's companion app, for the pipeline to
// fold into query context.
package notifications

import (
	"sync"
	"time"
)

// DefaultCap bounds the per-user notification ring (M).
const DefaultCap = 20

// DefaultMaxAge is how old a notification can be and still be considered
// "recent" enough to surface (T).
const DefaultMaxAge = 5 * time.Minute

// Notification is a stored companion-app push.
type Notification struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Manager holds one bounded notification ring per user.
type Manager struct {
	mu     sync.Mutex
	cap    int
	maxAge time.Duration

	byUser map[string][]Notification // ring, newest last
}

// Options configures a new Manager.
type Options struct {
	Cap    int           // defaults to DefaultCap
	MaxAge time.Duration // defaults to DefaultMaxAge
}

// New constructs an empty Manager.
func New(opts Options) *Manager {
	c := opts.Cap
	if c <= 0 {
		c = DefaultCap
	}
	age := opts.MaxAge
	if age <= 0 {
		age = DefaultMaxAge
	}
	return &Manager{cap: c, maxAge: age, byUser: make(map[string][]Notification)}
}

// Add appends a notification to userID's ring, dropping the oldest if full.
func (m *Manager) Add(userID string, payload []byte, receivedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring := append(m.byUser[userID], Notification{Payload: payload, ReceivedAt: receivedAt})
	if len(ring) > m.cap {
		ring = ring[len(ring)-m.cap:]
	}
	m.byUser[userID] = ring
}

// Recent returns up to limit of userID's notifications newest-first, filtered
// to those received within maxAge. A limit <= 0 returns all that pass the
// age filter.
func (m *Manager) Recent(userID string, limit int) []Notification {
	m.mu.Lock()
	ring := append([]Notification(nil), m.byUser[userID]...)
	m.mu.Unlock()

	cutoff := time.Now().Add(-m.maxAge)
	var out []Notification
	for i := len(ring) - 1; i >= 0; i-- {
		if ring[i].ReceivedAt.Before(cutoff) {
			continue
		}
		out = append(out, ring[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ClearUser drops all stored notifications for userID.
func (m *Manager) ClearUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
}
