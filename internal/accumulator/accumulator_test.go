package accumulator

import (
	"testing"
	"time"

	"github.com/snarg/session-engine/internal/hardware"
)

func evt(text string, final bool, utteranceID string) hardware.TranscriptionEvent {
	return hardware.TranscriptionEvent{Text: text, IsFinal: final, UtteranceID: utteranceID, ReceivedAt: time.Now()}
}

// waitForQuery blocks until onQueryReady fires or the deadline elapses.
func waitForQuery(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case q := <-ch:
		return q
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query")
		return ""
	}
}

func TestScenario1_SplitWordWakeAndTwoUtteranceQuery(t *testing.T) {
	ch := make(chan string, 1)
	a := New(Options{
		SilenceTimeout: 80 * time.Millisecond,
		OnQueryReady:   func(q, _ string) { ch <- q },
	})

	a.HandleTranscription(evt("Hey Mentra", false, ""))
	a.HandleTranscription(evt("Hey Mentra what time is it", false, ""))
	a.HandleTranscription(evt("Hey Mentra what time is it", true, "1"))
	time.Sleep(40 * time.Millisecond) // below the silence threshold
	a.HandleTranscription(evt("what's the weather", false, ""))
	a.HandleTranscription(evt("what's the weather", true, "2"))

	got := waitForQuery(t, ch)
	want := "what time is it what's the weather"
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}

func TestScenario2_WakeWordResidueOnSplitUtterance(t *testing.T) {
	ch := make(chan string, 1)
	a := New(Options{
		SilenceTimeout: 50 * time.Millisecond,
		OnQueryReady:   func(q, _ string) { ch <- q },
	})

	// First utterance finalizes a syllable short of the full wake phrase.
	a.HandleTranscription(evt("hey mentr", true, "u1"))
	if !a.Listening() {
		t.Fatal("expected truncated wake word to arm listening")
	}

	// The remainder of the wake word's last word lands as residue at the
	// start of the next utterance, followed by the actual query.
	a.HandleTranscription(evt("a, how much is the ticket", true, "u2"))

	got := waitForQuery(t, ch)
	if got != "how much is the ticket" {
		t.Errorf("query = %q, want %q", got, "how much is the ticket")
	}
}

func TestDuplicateUtteranceRedeliveryWhileListeningIsNoOp(t *testing.T) {
	ch := make(chan string, 1)
	a := New(Options{
		SilenceTimeout: 60 * time.Millisecond,
		OnQueryReady:   func(q, _ string) { ch <- q },
	})

	a.HandleTranscription(evt("hey mentra", false, ""))
	a.HandleTranscription(evt("hey mentra what time is it", true, "u1"))
	// SDK re-delivers the same finalized utterance with the same id while
	// still within the listening window.
	a.HandleTranscription(evt("hey mentra what time is it", true, "u1"))

	got := waitForQuery(t, ch)
	if got != "what time is it" {
		t.Errorf("query = %q, want %q (duplicate should not double the text)", got, "what time is it")
	}
}

func TestNoWakeWordNoListening(t *testing.T) {
	a := New(Options{SilenceTimeout: 50 * time.Millisecond})
	a.HandleTranscription(evt("what time is it", true, "u1"))
	if a.Listening() {
		t.Fatal("should not start listening without a wake word")
	}
}

func TestDestroyThenResetAllowsReattach(t *testing.T) {
	ch := make(chan string, 1)
	a := New(Options{
		SilenceTimeout: 50 * time.Millisecond,
		OnQueryReady:   func(q, _ string) { ch <- q },
	})

	a.HandleTranscription(evt("hey mentra first one", true, "u1"))
	waitForQuery(t, ch)

	a.Destroy()
	a.HandleTranscription(evt("hey mentra should be ignored", true, "u2"))
	select {
	case q := <-ch:
		t.Fatalf("destroyed accumulator should ignore events, got %q", q)
	case <-time.After(100 * time.Millisecond):
	}

	a.Reset()
	a.HandleTranscription(evt("hey mentra second one", true, "u3"))
	got := waitForQuery(t, ch)
	if got != "second one" {
		t.Errorf("query after reset = %q, want %q", got, "second one")
	}
}

func TestOnRawForwardsAllEvents(t *testing.T) {
	var raw []hardware.TranscriptionEvent
	a := New(Options{
		SilenceTimeout: 50 * time.Millisecond,
		OnRaw:          func(ev hardware.TranscriptionEvent) { raw = append(raw, ev) },
	})
	a.HandleTranscription(evt("not a wake word", true, "u1"))
	a.HandleTranscription(evt("hey mentra hello", true, "u2"))
	if len(raw) != 2 {
		t.Fatalf("expected every event forwarded regardless of listening state, got %d", len(raw))
	}
}
