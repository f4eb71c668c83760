package notifications

import (
	"testing"
	"time"
)

func TestRecentReturnsNewestFirst(t *testing.T) {
	m := New(Options{})
	now := time.Now()
	m.Add("u1", []byte("one"), now.Add(-2*time.Second))
	m.Add("u1", []byte("two"), now.Add(-1*time.Second))

	got := m.Recent("u1", 0)
	if len(got) != 2 || string(got[0].Payload) != "two" || string(got[1].Payload) != "one" {
		t.Fatalf("got %+v", got)
	}
}

func TestRecentFiltersOldEntries(t *testing.T) {
	m := New(Options{MaxAge: time.Minute})
	now := time.Now()
	m.Add("u1", []byte("stale"), now.Add(-2*time.Hour))
	m.Add("u1", []byte("fresh"), now)

	got := m.Recent("u1", 0)
	if len(got) != 1 || string(got[0].Payload) != "fresh" {
		t.Fatalf("got %+v, want only fresh", got)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	m := New(Options{})
	now := time.Now()
	for i := 0; i < 5; i++ {
		m.Add("u1", []byte{byte(i)}, now)
	}
	got := m.Recent("u1", 2)
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
}

func TestRingBoundedAtCap(t *testing.T) {
	m := New(Options{Cap: 3})
	now := time.Now()
	for i := 0; i < 10; i++ {
		m.Add("u1", []byte{byte(i)}, now)
	}
	got := m.Recent("u1", 0)
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
}

func TestClearUser(t *testing.T) {
	m := New(Options{})
	m.Add("u1", []byte("x"), time.Now())
	m.ClearUser("u1")
	if got := m.Recent("u1", 0); len(got) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(got))
	}
}
