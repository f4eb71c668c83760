// Package lifecycle reacts to connect/disconnect events from the wearable
// host, translating them into registry operations and topic-chat lifecycle
// broadcasts. It is the one place that decides whether a new hardware
// session is a reconnect or a fresh session.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/pipeline"
	"github.com/snarg/session-engine/internal/registry"
)

// welcomeSoundTimeout bounds the fire-and-forget welcome chime playback.
const welcomeSoundTimeout = 8 * time.Second

// ChatTopic is the topic lifecycle events share with the pipeline's chat
// events.
const ChatTopic = pipeline.ChatTopic

// StartedEvent is broadcast when a brand new session begins.
type StartedEvent struct {
	Type        string    `json:"type"`
	GlassesType string    `json:"glassesType"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReconnectingEvent is broadcast the instant a device disconnects, before
// the grace period has had a chance to elapse.
type ReconnectingEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconnectedEvent is broadcast when a device reattaches within the grace
// period.
type ReconnectedEvent struct {
	Type        string    `json:"type"`
	GlassesType string    `json:"glassesType"`
	Timestamp   time.Time `json:"timestamp"`
}

// EndedEvent is broadcast once the grace period elapses with no reconnect.
type EndedEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func glassesType(caps hardware.Capabilities) string {
	if caps.HasDisplay {
		return "display"
	}
	return "camera"
}

// OnExpire builds the registry.Options.OnExpire callback: broadcasting
// session_ended is the registry's responsibility to trigger (it alone knows
// when the grace period has elapsed), wired here since it needs the bus.
func OnExpire(bus *eventbus.Bus) func(userID string) {
	return func(userID string) {
		bus.Broadcast(userID, ChatTopic, EndedEvent{
			Type:      "session_ended",
			Reason:    "grace_period_expired",
			Timestamp: time.Now(),
		})
	}
}

// Controller wires wearable-host connect/disconnect notifications into the
// session registry and the event bus.
type Controller struct {
	registry        *registry.Registry
	bus             *eventbus.Bus
	welcomeSoundURL string
	log             zerolog.Logger
}

// Options configures a new Controller.
type Options struct {
	Registry        *registry.Registry
	Bus             *eventbus.Bus
	WelcomeSoundURL string // empty disables the welcome chime
	Log             zerolog.Logger
}

// New constructs a Controller.
func New(opts Options) *Controller {
	return &Controller{
		registry:        opts.Registry,
		bus:             opts.Bus,
		welcomeSoundURL: opts.WelcomeSoundURL,
		log:             opts.Log.With().Str("component", "lifecycle").Logger(),
	}
}

// OnSession handles a wearable host reporting that sess is now the live
// hardware session for userID — either a brand new connection or a
// reconnect within the grace period of a prior soft-disconnect.
func (c *Controller) OnSession(sess hardware.Session, userID string) {
	wasReconnect := c.registry.CancelRemoval(userID)
	u := c.registry.GetOrCreate(userID)
	if !wasReconnect {
		u.Initialize()
	}
	u.SetAppSession(sess)

	caps := sess.Capabilities()
	now := time.Now()

	if wasReconnect {
		c.log.Info().Str("user_id", userID).Msg("session reconnected within grace period")
		c.bus.Broadcast(userID, ChatTopic, ReconnectedEvent{
			Type:        "session_reconnected",
			GlassesType: glassesType(caps),
			Timestamp:   now,
		})
		return
	}

	c.log.Info().Str("user_id", userID).Msg("session started")
	c.bus.Broadcast(userID, ChatTopic, StartedEvent{
		Type:        "session_started",
		GlassesType: glassesType(caps),
		Timestamp:   now,
	})
	if caps.HasSpeaker && c.welcomeSoundURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), welcomeSoundTimeout)
			defer cancel()
			if err := sess.PlayAudio(ctx, c.welcomeSoundURL); err != nil {
				c.log.Debug().Err(err).Str("user_id", userID).Msg("welcome sound playback failed")
			}
		}()
	}
}

// OnStop handles the wearable host reporting userID's device has
// disconnected. The session is soft-removed — its state survives for the
// registry's grace period in case reason was transient.
func (c *Controller) OnStop(userID, reason string) {
	c.log.Info().Str("user_id", userID).Str("reason", reason).Msg("session stopped, entering grace period")
	c.bus.Broadcast(userID, ChatTopic, ReconnectingEvent{
		Type:      "session_reconnecting",
		Reason:    reason,
		Timestamp: time.Now(),
	})
	c.registry.SoftRemove(userID)
}
