package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/location"
	"github.com/snarg/session-engine/internal/notifications"
	"github.com/snarg/session-engine/internal/photostore"
	"github.com/snarg/session-engine/internal/registry"
	"github.com/snarg/session-engine/internal/user"
)

type fakeSession struct {
	caps hardware.Capabilities
}

func (f *fakeSession) Capabilities() hardware.Capabilities              { return f.caps }
func (f *fakeSession) OnTranscription(func(hardware.TranscriptionEvent)) {}
func (f *fakeSession) OnLocation(func(hardware.LocationEvent))          {}
func (f *fakeSession) OnNotification(func(hardware.Notification))      {}
func (f *fakeSession) OnSettingsChange(func(hardware.Settings))        {}
func (f *fakeSession) CapturePhoto(ctx context.Context) (hardware.PhotoResult, error) {
	return hardware.PhotoResult{}, nil
}
func (f *fakeSession) Speak(ctx context.Context, text string) error { return nil }
func (f *fakeSession) ShowText(ctx context.Context, text string, d time.Duration) error {
	return nil
}
func (f *fakeSession) PlayAudio(ctx context.Context, url string) error { return nil }
func (f *fakeSession) StopAudio(ctx context.Context) error             { return nil }
func (f *fakeSession) RequestLocation(ctx context.Context) (hardware.LocationEvent, error) {
	return hardware.LocationEvent{}, errors.New("fakeSession: no location")
}
func (f *fakeSession) CurrentSettings() hardware.Settings { return hardware.Settings{} }
func (f *fakeSession) Close() error                       { return nil }

func newTestRegistry(t *testing.T, bus *eventbus.Bus, grace time.Duration) *registry.Registry {
	t.Helper()
	return registry.New(registry.Options{
		GracePeriod: grace,
		Log:         zerolog.Nop(),
		OnExpire:    OnExpire(bus),
		NewUser: func(userID string) *user.User {
			return user.New(user.Options{
				ID:  userID,
				Bus: bus,
				Stores: user.Stores{
					Photos:        photostore.New(photostore.Options{}),
					Location:      location.New(location.Options{}),
					Notifications: notifications.New(notifications.Options{}),
					ChatHistory:   chathistory.New(chathistory.Options{}),
				},
				Log: zerolog.Nop(),
			})
		},
	})
}

func TestControllerReconnectWithinGrace(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	reg := newTestRegistry(t, bus, time.Minute)
	c := New(Options{Registry: reg, Bus: bus, Log: zerolog.Nop()})

	sess1 := &fakeSession{caps: hardware.Capabilities{HasDisplay: true}}
	c.OnSession(sess1, "u1")
	c.OnStop("u1", "ble_disconnect")

	sess2 := &fakeSession{caps: hardware.Capabilities{HasDisplay: true}}
	c.OnSession(sess2, "u1")

	u, ok := reg.Get("u1")
	require.True(t, ok)
	require.True(t, u.Connected())
}

func TestControllerExpiryBroadcastsSessionEnded(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	reg := newTestRegistry(t, bus, 30*time.Millisecond)
	c := New(Options{Registry: reg, Bus: bus, Log: zerolog.Nop()})

	ch, cancel := bus.Subscribe("u1", ChatTopic, 8)
	defer cancel()

	sess := &fakeSession{caps: hardware.Capabilities{HasDisplay: true}}
	c.OnSession(sess, "u1")
	c.OnStop("u1", "timeout")

	var sawEnded bool
	deadline := time.After(2 * time.Second)
	for !sawEnded {
		select {
		case ev := <-ch:
			if _, ok := ev.Data.(EndedEvent); ok {
				sawEnded = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for session_ended")
		}
	}

	_, ok := reg.Get("u1")
	require.False(t, ok)
}
