// Package hardware defines the capability surface the session core depends
// on for a connected pair of smart glasses, plus a concrete MQTT-backed
// implementation. The core never talks to a physical device directly — every
// manager is handed a Session (or a read-only accessor to one) and nothing
// else.
package hardware

import (
	"context"
	"time"
)

// Capabilities describes what a connected device can do. The pipeline and
// managers consult this to skip steps a device can't support (e.g. no
// display means responses go out as speech only).
type Capabilities struct {
	HasCamera  bool
	HasDisplay bool
	HasSpeaker bool
	ModelName  string
}

// TranscriptionEvent is one live-transcription update from the device's
// speech-to-text pipeline.
type TranscriptionEvent struct {
	Text        string
	IsFinal     bool
	UtteranceID string // empty when the device doesn't supply one
	SpeakerID   string // empty when speaker diarization isn't available
	ReceivedAt  time.Time
}

// LocationEvent is a raw fix pushed by the device, independent of any
// on-demand refresh the location manager performs.
type LocationEvent struct {
	Lat, Lng  float64
	Accuracy  float64
	FetchedAt time.Time
}

// Notification is an opaque payload handed up from a companion app; the core
// never interprets its contents beyond storing and aging it out.
type Notification struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Settings is the subset of device/companion-app settings the core reacts
// to directly.
type Settings struct {
	Timezone string
	Theme    string
}

// PhotoResult is the raw capture returned by CapturePhoto.
type PhotoResult struct {
	Bytes    []byte
	MimeType string
	Filename string
}

// Session is the externally supplied capability object for one connected
// device. It is mutated only by the lifecycle controller (via User.SetAppSession
// / ClearAppSession); every other component is handed read access only, by a
// closure or plain interface value, never a mutable reference back into User.
type Session interface {
	Capabilities() Capabilities

	OnTranscription(func(TranscriptionEvent))
	OnLocation(func(LocationEvent))
	OnNotification(func(Notification))
	OnSettingsChange(func(Settings))

	CapturePhoto(ctx context.Context) (PhotoResult, error)
	RequestLocation(ctx context.Context) (LocationEvent, error)
	Speak(ctx context.Context, text string) error
	ShowText(ctx context.Context, text string, duration time.Duration) error
	PlayAudio(ctx context.Context, url string) error
	StopAudio(ctx context.Context) error

	// CurrentSettings returns the last known settings snapshot, used by the
	// location manager to resolve a timezone without waiting on a callback.
	CurrentSettings() Settings

	Close() error
}
