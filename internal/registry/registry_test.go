package registry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/location"
	"github.com/snarg/session-engine/internal/notifications"
	"github.com/snarg/session-engine/internal/photostore"
	"github.com/snarg/session-engine/internal/user"
)

func newTestRegistry(t *testing.T, grace time.Duration, onExpire func(string)) (*Registry, *chathistory.Manager) {
	t.Helper()
	history := chathistory.New(chathistory.Options{})
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	r := New(Options{
		GracePeriod: grace,
		Log:         zerolog.Nop(),
		OnExpire:    onExpire,
		NewUser: func(userID string) *user.User {
			return user.New(user.Options{
				ID:  userID,
				Bus: bus,
				Stores: user.Stores{
					Photos:        photostore.New(photostore.Options{}),
					Location:      location.New(location.Options{}),
					Notifications: notifications.New(notifications.Options{}),
					ChatHistory:   history,
				},
				Log: zerolog.Nop(),
			})
		},
	})
	return r, history
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, nil)
	a := r.GetOrCreate("u1")
	b := r.GetOrCreate("u1")
	if a != b {
		t.Fatal("GetOrCreate returned distinct users for the same id")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestSoftRemoveThenCancelPreservesState(t *testing.T) {
	r, history := newTestRegistry(t, time.Minute, nil)
	u := r.GetOrCreate("u1")
	history.AddTurn("u1", chathistory.Turn{Role: "user", Content: "what time is it", CreatedAt: time.Now()})

	r.SoftRemove("u1")
	if !r.CancelRemoval("u1") {
		t.Fatal("CancelRemoval should report a pending removal")
	}

	got, ok := r.Get("u1")
	if !ok || got != u {
		t.Fatal("user should survive softRemove + cancelRemoval unchanged")
	}
	if turns := history.RecentTurns("u1", 0); len(turns) != 1 || turns[0].Content != "what time is it" {
		t.Fatalf("chat history not preserved across soft removal: %+v", turns)
	}
	if r.CancelRemoval("u1") {
		t.Fatal("second CancelRemoval should find no pending timer")
	}
}

func TestSoftRemoveOnUnknownUserIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, nil)
	r.SoftRemove("nobody")
	if r.CancelRemoval("nobody") {
		t.Fatal("no timer should exist for an unknown user")
	}
}

func TestRepeatedSoftRemoveCoalesces(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute, nil)
	r.GetOrCreate("u1")
	r.SoftRemove("u1")
	r.SoftRemove("u1")
	if !r.CancelRemoval("u1") {
		t.Fatal("expected one pending removal after repeated SoftRemove")
	}
	if r.CancelRemoval("u1") {
		t.Fatal("repeated SoftRemove must not leave a second timer behind")
	}
}

func TestGraceExpiryRemovesUserAndFiresOnExpire(t *testing.T) {
	expired := make(chan string, 1)
	r, _ := newTestRegistry(t, 20*time.Millisecond, func(userID string) { expired <- userID })
	r.GetOrCreate("u1")
	r.SoftRemove("u1")

	select {
	case id := <-expired:
		if id != "u1" {
			t.Fatalf("onExpire fired for %q, want u1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for grace expiry")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := r.Get("u1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("user still present after grace expiry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemoveCancelsPendingTimer(t *testing.T) {
	expired := make(chan string, 1)
	r, _ := newTestRegistry(t, 20*time.Millisecond, func(userID string) { expired <- userID })
	r.GetOrCreate("u1")
	r.SoftRemove("u1")
	r.Remove("u1")

	if _, ok := r.Get("u1"); ok {
		t.Fatal("user should be gone after hard Remove")
	}
	select {
	case <-expired:
		t.Fatal("onExpire must not fire after hard Remove cancelled the timer")
	case <-time.After(100 * time.Millisecond):
	}
}
