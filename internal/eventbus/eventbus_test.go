package eventbus

import "testing"

func TestBroadcastThenSubscribeReplaysPending(t *testing.T) {
	b := New(Options{})

	b.Broadcast("u1", "transcription", "hello")
	b.Broadcast("u1", "transcription", "world")

	ch, cancel := b.Subscribe("u1", "transcription", 10)
	defer cancel()

	first := <-ch
	second := <-ch
	if first.Data != "hello" || second.Data != "world" {
		t.Fatalf("got %v, %v; want hello, world in order", first.Data, second.Data)
	}
}

func TestLiveSubscriberReceivesWithoutPending(t *testing.T) {
	b := New(Options{})
	ch, cancel := b.Subscribe("u1", "photo", 10)
	defer cancel()

	b.Broadcast("u1", "photo", 42)
	ev := <-ch
	if ev.Data != 42 {
		t.Fatalf("got %v, want 42", ev.Data)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New(Options{})
	chA, cancelA := b.Subscribe("u1", "a", 10)
	defer cancelA()
	chB, cancelB := b.Subscribe("u1", "b", 10)
	defer cancelB()

	b.Broadcast("u1", "a", "only-a")

	select {
	case ev := <-chA:
		if ev.Data != "only-a" {
			t.Fatalf("got %v", ev.Data)
		}
	default:
		t.Fatal("expected event on topic a")
	}
	select {
	case ev := <-chB:
		t.Fatalf("topic b should not receive topic a's broadcast, got %v", ev.Data)
	default:
	}
}

func TestUsersAreIsolated(t *testing.T) {
	b := New(Options{})
	ch1, cancel1 := b.Subscribe("u1", "topic", 10)
	defer cancel1()
	ch2, cancel2 := b.Subscribe("u2", "topic", 10)
	defer cancel2()

	b.Broadcast("u1", "topic", "for-u1")

	select {
	case ev := <-ch1:
		if ev.Data != "for-u1" {
			t.Fatalf("got %v", ev.Data)
		}
	default:
		t.Fatal("expected event for u1")
	}
	select {
	case ev := <-ch2:
		t.Fatalf("u2 should not receive u1's broadcast, got %v", ev.Data)
	default:
	}
}

func TestPendingCapDropsOldest(t *testing.T) {
	b := New(Options{PendingCap: 3})
	for i := 0; i < 5; i++ {
		b.Broadcast("u1", "t", i)
	}
	ch, cancel := b.Subscribe("u1", "t", 10)
	defer cancel()

	var got []int
	for i := 0; i < 3; i++ {
		got = append(got, (<-ch).Data.(int))
	}
	want := []int{2, 3, 4}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestClearPendingDiscardsBacklog(t *testing.T) {
	b := New(Options{})
	b.Broadcast("u1", "t", "stale")
	b.ClearPending("u1", "t")

	ch, cancel := b.Subscribe("u1", "t", 10)
	defer cancel()
	select {
	case ev := <-ch:
		t.Fatalf("expected no backlog after ClearPending, got %v", ev.Data)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(Options{})
	ch, cancel := b.Subscribe("u1", "t", 10)
	cancel()

	b.Broadcast("u1", "t", "after-cancel")
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected delivery after cancel: %v", ev.Data)
		}
	default:
	}
}
