// Package user implements the per-user aggregate that owns a hardware
// session handle plus the managers scoped to that user: the transcription
// accumulator, and (via shared multi-user stores) photo, location,
// notification, and chat history state.
package user

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/accumulator"
	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/location"
	"github.com/snarg/session-engine/internal/notifications"
	"github.com/snarg/session-engine/internal/photostore"
)

// jobQueueDepth bounds how many pending pipeline runs a single user can
// queue before a new query is dropped with a log line rather than blocking
// the hardware-session callback goroutine indefinitely.
const jobQueueDepth = 8

// TranscriptionTopic is the event bus topic raw transcription events are
// forwarded to, regardless of the accumulator's listening state.
const TranscriptionTopic = "transcription"

// transcriptionPush is the shape placed on TranscriptionTopic.
type transcriptionPush struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

// Stores bundles the shared, multi-user-keyed managers a User references.
// These are constructed once per process and shared across every User;
// each manager keys its internal state by userID, which is what gives each
// user independent state without a separate manager instance per user.
type Stores struct {
	Photos        *photostore.Store
	Location      *location.Manager
	Notifications *notifications.Manager
	ChatHistory   *chathistory.Manager
}

// User is the per-user aggregate described in the package doc.
type User struct {
	ID string

	stores Stores
	bus    *eventbus.Bus
	log    zerolog.Logger

	mu          sync.Mutex
	session     hardware.Session
	accum       *accumulator.Accumulator
	destroyed   bool
	initialized bool

	onQueryReady func(u *User, query, speakerID string)

	jobs chan func()
	wg   sync.WaitGroup
}

// Options configures a new User.
type Options struct {
	ID             string
	Stores         Stores
	Bus            *eventbus.Bus
	SilenceTimeout time.Duration
	Log            zerolog.Logger

	// OnQueryReady fires from the accumulator's silence callback with this
	// User as context — the lifecycle/pipeline wiring lives one layer up,
	// since the pipeline needs access to the registry/event bus too.
	OnQueryReady func(u *User, query, speakerID string)
}

// New constructs a User with no attached hardware session and starts its
// single-worker pipeline job queue.
func New(opts Options) *User {
	log := opts.Log.With().Str("component", "user").Str("user_id", opts.ID).Logger()
	u := &User{
		ID:           opts.ID,
		stores:       opts.Stores,
		bus:          opts.Bus,
		log:          log,
		onQueryReady: opts.OnQueryReady,
		jobs:         make(chan func(), jobQueueDepth),
	}
	u.accum = accumulator.New(accumulator.Options{
		SilenceTimeout: opts.SilenceTimeout,
		Log:            log,
		OnQueryReady: func(query, speakerID string) {
			if u.onQueryReady != nil {
				u.onQueryReady(u, query, speakerID)
			}
		},
		OnRaw: u.publishRaw,
	})
	u.wg.Add(1)
	go u.workerLoop()
	return u
}

func (u *User) publishRaw(ev hardware.TranscriptionEvent) {
	if u.bus == nil {
		return
	}
	u.bus.Broadcast(u.ID, TranscriptionTopic, transcriptionPush{
		Type:      "transcription",
		Text:      ev.Text,
		IsFinal:   ev.IsFinal,
		Timestamp: time.Now(),
	})
}

func (u *User) workerLoop() {
	defer u.wg.Done()
	for job := range u.jobs {
		job()
	}
}

// Enqueue serializes fn onto this user's single pipeline worker. A full
// queue drops fn and logs, rather than applying backpressure to whatever
// goroutine is calling (typically the accumulator's silence timer).
func (u *User) Enqueue(fn func()) {
	select {
	case u.jobs <- fn:
	default:
		u.log.Warn().Msg("pipeline job queue full, dropping query")
	}
}

// Stores returns the shared managers this user reads and writes through.
// Callers (the query pipeline) treat this as a read-only accessor.
func (u *User) Stores() Stores {
	return u.stores
}

// Bus returns the event bus this user broadcasts lifecycle and chat events
// on, or nil if none was configured.
func (u *User) Bus() *eventbus.Bus {
	return u.bus
}

// Initialize marks this user as initialized the first time it connects;
// later calls are no-ops. It performs no other setup: it does not connect a
// durable store or fetch settings.
func (u *User) Initialize() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.initialized {
		return
	}
	u.initialized = true
}

// SetAppSession attaches sess as this user's hardware session. Any existing
// session is first cleared to prevent duplicate listeners on an ungraceful
// reconnect, then the accumulator's destroyed flag is reset and callbacks
// are registered.
func (u *User) SetAppSession(sess hardware.Session) {
	u.ClearAppSession()

	u.mu.Lock()
	u.session = sess
	u.destroyed = false
	u.mu.Unlock()

	u.accum.Reset()

	sess.OnTranscription(u.accum.HandleTranscription)
	sess.OnLocation(u.stores.Location.OnLocation)
	sess.OnSettingsChange(u.stores.Location.OnSettingsChange)
	sess.OnNotification(func(n hardware.Notification) {
		u.stores.Notifications.Add(u.ID, n.Payload, n.ReceivedAt)
	})
}

// ClearAppSession unsubscribes listeners, clears the accumulator's silence
// timer, marks the accumulator destroyed, and drops the hardware handle.
func (u *User) ClearAppSession() {
	u.mu.Lock()
	sess := u.session
	u.session = nil
	u.mu.Unlock()

	if sess == nil {
		return
	}
	// Re-registering the callbacks below to no-ops prevents a stale session
	// object (if the caller still holds a reference) from driving this
	// user's accumulator after it's been detached.
	sess.OnTranscription(func(hardware.TranscriptionEvent) {})
	sess.OnLocation(func(hardware.LocationEvent) {})
	sess.OnSettingsChange(func(hardware.Settings) {})
	sess.OnNotification(func(hardware.Notification) {})

	u.accum.Destroy()
}

// HardwareSession returns the currently attached session, or nil.
func (u *User) HardwareSession() hardware.Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

// Connected reports whether a hardware session is currently attached.
func (u *User) Connected() bool {
	return u.HardwareSession() != nil
}

// Teardown stops the pipeline worker and tears down hardware listeners. It
// must only be called once, by the registry, as the final step of hard
// removal.
func (u *User) Teardown() {
	u.ClearAppSession()
	close(u.jobs)
	u.wg.Wait()
	u.stores.Photos.ClearUser(u.ID)
	u.stores.Notifications.ClearUser(u.ID)
	u.stores.ChatHistory.ClearUser(u.ID)
	if u.bus != nil {
		u.bus.ClearUser(u.ID)
	}
}
