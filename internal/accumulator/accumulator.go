// Package accumulator turns a stream of raw transcription events into
// discrete queries: it watches for a wake phrase, accumulates the utterance
// that follows, and fires a callback once the speaker has gone quiet.
package accumulator

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/wakeword"
)

// DefaultSilenceTimeout is how long to wait after the last relevant event
// before treating the accumulated text as a complete query.
const DefaultSilenceTimeout = 1500 * time.Millisecond

// Accumulator is the per-user transcription state machine described in the
// package doc. It is safe for concurrent use: transcription events typically
// arrive from a hardware-session callback goroutine while the silence timer
// fires on its own goroutine.
type Accumulator struct {
	mu sync.Mutex

	matcher        *wakeword.Matcher
	silenceTimeout time.Duration
	log            zerolog.Logger

	listening                bool
	confirmedTranscript      string
	currentUtteranceText     string
	lastConfirmedUtteranceID string
	haveConfirmedUtterance   bool
	lastFinalSpeakerID       string
	timer                    *time.Timer
	destroyed                bool

	onQueryReady func(query, speakerID string)
	onRaw        func(hardware.TranscriptionEvent)
}

// Options configures a new Accumulator.
type Options struct {
	Matcher        *wakeword.Matcher // defaults to wakeword.New(nil) if nil
	SilenceTimeout time.Duration     // defaults to DefaultSilenceTimeout
	Log            zerolog.Logger

	// OnQueryReady fires once, with the full query text (wake phrase
	// stripped) and the speaker id of the latest final event that carried
	// one, after silence following the last confirmed/partial text.
	OnQueryReady func(query, speakerID string)

	// OnRaw, if set, is invoked with every transcription event as it
	// arrives, regardless of listening state — used to forward events onto
	// the transcription topic of the event bus.
	OnRaw func(hardware.TranscriptionEvent)
}

// New constructs an Accumulator in the not-listening state.
func New(opts Options) *Accumulator {
	m := opts.Matcher
	if m == nil {
		m = wakeword.New(nil)
	}
	timeout := opts.SilenceTimeout
	if timeout <= 0 {
		timeout = DefaultSilenceTimeout
	}
	return &Accumulator{
		matcher:        m,
		silenceTimeout: timeout,
		log:            opts.Log.With().Str("component", "accumulator").Logger(),
		onQueryReady:   opts.OnQueryReady,
		onRaw:          opts.OnRaw,
	}
}

// HandleTranscription processes one raw transcription event. It is the only
// entry point into the state machine.
func (a *Accumulator) HandleTranscription(ev hardware.TranscriptionEvent) {
	if a.onRaw != nil {
		a.onRaw(ev)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}

	if !a.listening {
		r := a.matcher.Detect(ev.Text)
		if !r.Matched {
			return
		}
		a.listening = true
		a.confirmedTranscript = ""
		a.currentUtteranceText = r.Tail
		a.lastFinalSpeakerID = ev.SpeakerID
		a.haveConfirmedUtterance = false
		a.lastConfirmedUtteranceID = ""
		a.armTimer()
		return
	}

	clean := a.matcher.RemoveWakeWord(a.matcher.StripResidue(ev.Text))

	if ev.IsFinal {
		isDuplicate := ev.UtteranceID != "" && a.haveConfirmedUtterance && ev.UtteranceID == a.lastConfirmedUtteranceID
		if isDuplicate {
			return
		}
		if a.confirmedTranscript == "" {
			a.confirmedTranscript = clean
		} else if clean != "" {
			a.confirmedTranscript = a.confirmedTranscript + " " + clean
		}
		a.currentUtteranceText = ""
		if ev.UtteranceID != "" {
			a.lastConfirmedUtteranceID = ev.UtteranceID
			a.haveConfirmedUtterance = true
		}
		if ev.SpeakerID != "" {
			a.lastFinalSpeakerID = ev.SpeakerID
		}
		a.armTimer()
		return
	}

	a.currentUtteranceText = clean
	a.armTimer()
}

// armTimer (re-)starts the silence timer. Each relevant event restarts the
// countdown so a multi-utterance query isn't cut off mid-sentence.
func (a *Accumulator) armTimer() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.silenceTimeout, a.onSilence)
}

func (a *Accumulator) onSilence() {
	a.mu.Lock()
	if a.destroyed || !a.listening {
		a.mu.Unlock()
		return
	}
	full := strings.TrimSpace(a.confirmedTranscript + " " + a.currentUtteranceText)
	full = a.matcher.RemoveWakeWord(a.matcher.StripResidue(full))
	speakerID := a.lastFinalSpeakerID

	a.listening = false
	a.confirmedTranscript = ""
	a.currentUtteranceText = ""
	a.lastFinalSpeakerID = ""
	a.haveConfirmedUtterance = false
	a.lastConfirmedUtteranceID = ""
	a.timer = nil
	cb := a.onQueryReady
	a.mu.Unlock()

	if cb != nil && full != "" {
		cb(full, speakerID)
	}
}

// Reset returns the accumulator to a fresh not-listening state, as required
// when a device reattaches to a user after a soft disconnect. The
// destroyed-flag invariant means a prior Destroy() is undone by Reset, not
// permanent.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.listening = false
	a.confirmedTranscript = ""
	a.currentUtteranceText = ""
	a.lastConfirmedUtteranceID = ""
	a.haveConfirmedUtterance = false
	a.lastFinalSpeakerID = ""
	a.destroyed = false
}

// Destroy stops any pending timer and makes the accumulator ignore further
// transcription events until Reset is called.
func (a *Accumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.destroyed = true
}

// Listening reports whether the accumulator is currently mid-utterance.
func (a *Accumulator) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}
