package chathistory

import (
	"testing"
	"time"
)

func TestAddTurnAndRecentTurnsOrder(t *testing.T) {
	m := New(Options{})
	now := time.Now()
	m.AddTurn("u1", Turn{Role: "user", Content: "hi", CreatedAt: now.Add(-2 * time.Second)})
	m.AddTurn("u1", Turn{Role: "assistant", Content: "hello", CreatedAt: now.Add(-1 * time.Second)})

	got := m.RecentTurns("u1", 0)
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Fatalf("got %+v, want oldest-first (youngest-last)", got)
	}
}

func TestRingBoundedAtCap(t *testing.T) {
	m := New(Options{Cap: 2})
	now := time.Now()
	for i := 0; i < 5; i++ {
		m.AddTurn("u1", Turn{Role: "user", Content: string(rune('a' + i)), CreatedAt: now})
	}
	got := m.RecentTurns("u1", 0)
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
}

func TestRecentTurnsFiltersByAge(t *testing.T) {
	m := New(Options{})
	now := time.Now()
	m.AddTurn("u1", Turn{Role: "user", Content: "stale", CreatedAt: now.Add(-time.Hour)})
	m.AddTurn("u1", Turn{Role: "user", Content: "fresh", CreatedAt: now})

	got := m.RecentTurns("u1", time.Minute)
	if len(got) != 1 || got[0].Content != "fresh" {
		t.Fatalf("got %+v", got)
	}
}

type fakeDurable struct {
	received [][]DurableTurn
	mu       chan struct{}
}

func newFakeDurable() *fakeDurable { return &fakeDurable{mu: make(chan struct{}, 10)} }

func (f *fakeDurable) AppendBatch(turns []DurableTurn) {
	f.received = append(f.received, turns)
	f.mu <- struct{}{}
}

func TestDurableWriterReceivesTurns(t *testing.T) {
	fd := newFakeDurable()
	m := New(Options{Durable: fd})
	m.AddTurn("u1", Turn{Role: "user", Content: "hi", CreatedAt: time.Now()})
	m.Close() // flushes the batcher immediately

	select {
	case <-fd.mu:
	case <-time.After(time.Second):
		t.Fatal("expected durable writer to receive a batch")
	}
	if len(fd.received) != 1 || len(fd.received[0]) != 1 || fd.received[0][0].Content != "hi" {
		t.Fatalf("got %+v", fd.received)
	}
}

func TestClearUser(t *testing.T) {
	m := New(Options{})
	m.AddTurn("u1", Turn{Role: "user", Content: "x", CreatedAt: time.Now()})
	m.ClearUser("u1")
	if got := m.RecentTurns("u1", 0); len(got) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(got))
	}
}
