// Package registry owns the process-wide userId -> User map and the soft
// removal / grace-period machinery described for the session registry: a
// disconnected device's state is kept warm for a grace period so a
// reconnect resumes the same conversation instead of starting over.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/user"
)

// DefaultGracePeriod is how long a user's state survives a hardware
// disconnect before being torn down for good.
const DefaultGracePeriod = 60 * time.Second

// Factory constructs a new User for userID. Supplied by the caller so the
// registry doesn't need to know about the shared stores/dependencies a User
// requires.
type Factory func(userID string) *user.User

// Registry is the process-wide user directory.
type Registry struct {
	mu      sync.Mutex
	users   map[string]*user.User
	pending map[string]*time.Timer

	newUser Factory
	grace   time.Duration
	log     zerolog.Logger

	// onExpire fires after a soft-removed user's grace period elapses and
	// its state has been torn down. Typically wired to broadcast a
	// session_ended lifecycle event.
	onExpire func(userID string)
}

// Options configures a new Registry.
type Options struct {
	NewUser     Factory
	GracePeriod time.Duration
	Log         zerolog.Logger
	OnExpire    func(userID string)
}

// New constructs an empty Registry.
func New(opts Options) *Registry {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		users:    make(map[string]*user.User),
		pending:  make(map[string]*time.Timer),
		newUser:  opts.NewUser,
		grace:    grace,
		log:      opts.Log.With().Str("component", "registry").Logger(),
		onExpire: opts.OnExpire,
	}
}

// GetOrCreate returns the existing User for userID, or constructs one via
// the configured factory if none exists yet. Idempotent.
func (r *Registry) GetOrCreate(userID string) *user.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		return u
	}
	u := r.newUser(userID)
	r.users[userID] = u
	return u
}

// Get returns the User for userID, if one exists.
func (r *Registry) Get(userID string) (*user.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	return u, ok
}

// CancelRemoval cancels any pending soft-removal timer for userID. It
// reports whether a removal was actually pending — the lifecycle controller
// uses this to distinguish a reconnect from a brand new session.
func (r *Registry) CancelRemoval(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.pending[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.pending, userID)
	return true
}

// SoftRemove detaches userID's hardware session without tearing down its
// state, and arms a timer that hard-removes the user after the grace period
// if no reconnect cancels it first.
func (r *Registry) SoftRemove(userID string) {
	r.mu.Lock()
	u, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if t, exists := r.pending[userID]; exists {
		t.Stop()
	}
	r.mu.Unlock()

	u.ClearAppSession()

	r.mu.Lock()
	r.pending[userID] = time.AfterFunc(r.grace, func() {
		r.expire(userID)
	})
	r.mu.Unlock()
}

func (r *Registry) expire(userID string) {
	r.mu.Lock()
	delete(r.pending, userID)
	u, ok := r.users[userID]
	if ok {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.log.Info().Str("user_id", userID).Msg("grace period elapsed, removing user")
	// onExpire runs before Teardown so a session_ended broadcast still has a
	// live event bus to land on (or queue in, for whatever subscriber shows
	// up in the instant before Teardown clears it); Teardown's bus.ClearUser
	// then discards that backlog along with everything else for userID.
	if r.onExpire != nil {
		r.onExpire(userID)
	}
	u.Teardown()
}

// Remove hard-removes userID immediately, cancelling any pending grace
// timer. Used for explicit admin/debug kill-session requests.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	if t, ok := r.pending[userID]; ok {
		t.Stop()
		delete(r.pending, userID)
	}
	u, ok := r.users[userID]
	if ok {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	if ok {
		u.Teardown()
	}
}

// Len returns the number of currently tracked users (connected or within
// grace period).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
