package hardware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

func decodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// MQTTSession is a Session backed by per-user MQTT topics: the wearable host
// publishes transcription/location/notification/settings events, and
// receives capture/speak/display/audio commands as correlated request/response
// pairs. This is the concrete stand-in for the externally supplied capability
// object — the rest of the core only ever sees the Session interface.
type MQTTSession struct {
	client mqtt.Client
	userID string
	log    zerolog.Logger

	caps Capabilities

	mu         sync.RWMutex
	settings   Settings
	onTranscr  func(TranscriptionEvent)
	onLocation func(LocationEvent)
	onNotif    func(Notification)
	onSettings func(Settings)

	pending    sync.Map // requestID string -> chan json.RawMessage
	nextReqID  atomic64
	cmdTimeout time.Duration
}

type atomic64 struct {
	mu sync.Mutex
	n  uint64
}

func (a *atomic64) next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return a.n
}

// MQTTSessionOptions configures a new per-user MQTT session.
type MQTTSessionOptions struct {
	Client     mqtt.Client
	UserID     string
	Caps       Capabilities
	CmdTimeout time.Duration // default 10s
	Log        zerolog.Logger
}

// NewMQTTSession subscribes to this user's event topics and returns a Session
// that publishes commands to the matching request topics.
func NewMQTTSession(opts MQTTSessionOptions) (*MQTTSession, error) {
	timeout := opts.CmdTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &MQTTSession{
		client:     opts.Client,
		userID:     opts.UserID,
		caps:       opts.Caps,
		cmdTimeout: timeout,
		log:        opts.Log.With().Str("component", "mqtt-session").Str("user_id", opts.UserID).Logger(),
	}

	subs := map[string]mqtt.MessageHandler{
		s.topic("transcription"): s.handleTranscription,
		s.topic("location"):      s.handleLocation,
		s.topic("notification"):  s.handleNotification,
		s.topic("settings"):      s.handleSettings,
		s.topic("response/+"):    s.handleResponse,
	}
	for topic, handler := range subs {
		tok := s.client.Subscribe(topic, 1, handler)
		tok.Wait()
		if err := tok.Error(); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return s, nil
}

func (s *MQTTSession) topic(suffix string) string {
	return fmt.Sprintf("glasses/%s/%s", s.userID, suffix)
}

func (s *MQTTSession) Capabilities() Capabilities { return s.caps }

func (s *MQTTSession) OnTranscription(f func(TranscriptionEvent)) {
	s.mu.Lock()
	s.onTranscr = f
	s.mu.Unlock()
}

func (s *MQTTSession) OnLocation(f func(LocationEvent)) {
	s.mu.Lock()
	s.onLocation = f
	s.mu.Unlock()
}

func (s *MQTTSession) OnNotification(f func(Notification)) {
	s.mu.Lock()
	s.onNotif = f
	s.mu.Unlock()
}

func (s *MQTTSession) OnSettingsChange(f func(Settings)) {
	s.mu.Lock()
	s.onSettings = f
	s.mu.Unlock()
}

func (s *MQTTSession) CurrentSettings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *MQTTSession) handleTranscription(_ mqtt.Client, msg mqtt.Message) {
	var wire struct {
		Text        string `json:"text"`
		IsFinal     bool   `json:"isFinal"`
		UtteranceID string `json:"utteranceId"`
		SpeakerID   string `json:"speakerId"`
	}
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		s.log.Debug().Err(err).Msg("malformed transcription payload")
		return
	}
	s.mu.RLock()
	cb := s.onTranscr
	s.mu.RUnlock()
	if cb != nil {
		cb(TranscriptionEvent{
			Text:        wire.Text,
			IsFinal:     wire.IsFinal,
			UtteranceID: wire.UtteranceID,
			SpeakerID:   wire.SpeakerID,
			ReceivedAt:  time.Now(),
		})
	}
}

func (s *MQTTSession) handleLocation(_ mqtt.Client, msg mqtt.Message) {
	var wire struct {
		Lat, Lng, Accuracy float64
	}
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		s.log.Debug().Err(err).Msg("malformed location payload")
		return
	}
	s.mu.RLock()
	cb := s.onLocation
	s.mu.RUnlock()
	if cb != nil {
		cb(LocationEvent{Lat: wire.Lat, Lng: wire.Lng, Accuracy: wire.Accuracy, FetchedAt: time.Now()})
	}
}

func (s *MQTTSession) handleNotification(_ mqtt.Client, msg mqtt.Message) {
	s.mu.RLock()
	cb := s.onNotif
	s.mu.RUnlock()
	if cb != nil {
		payload := append([]byte(nil), msg.Payload()...)
		cb(Notification{Payload: payload, ReceivedAt: time.Now()})
	}
}

func (s *MQTTSession) handleSettings(_ mqtt.Client, msg mqtt.Message) {
	var wire Settings
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		s.log.Debug().Err(err).Msg("malformed settings payload")
		return
	}
	s.mu.Lock()
	s.settings = wire
	cb := s.onSettings
	s.mu.Unlock()
	if cb != nil {
		cb(wire)
	}
}

func (s *MQTTSession) handleResponse(_ mqtt.Client, msg mqtt.Message) {
	reqID := msg.Topic()[len(s.topic("response/")):]
	if ch, ok := s.pending.Load(reqID); ok {
		select {
		case ch.(chan json.RawMessage) <- json.RawMessage(msg.Payload()):
		default:
		}
	}
}

// request publishes a command and waits for its correlated response,
// bounded by s.cmdTimeout or the caller's context, whichever fires first.
func (s *MQTTSession) request(ctx context.Context, kind string, body any) (json.RawMessage, error) {
	reqID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), s.nextReqID.next())
	ch := make(chan json.RawMessage, 1)
	s.pending.Store(reqID, ch)
	defer s.pending.Delete(reqID)

	envelope := struct {
		RequestID string `json:"requestId"`
		Body      any    `json:"body"`
	}{RequestID: reqID, Body: body}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	tok := s.client.Publish(s.topic("cmd/"+kind), 1, false, payload)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("publish %s command: %w", kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cmdTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s command timed out: %w", kind, ctx.Err())
	}
}

func (s *MQTTSession) CapturePhoto(ctx context.Context) (PhotoResult, error) {
	raw, err := s.request(ctx, "capture_photo", nil)
	if err != nil {
		return PhotoResult{}, err
	}
	var wire struct {
		BytesB64 string `json:"bytesBase64"`
		MimeType string `json:"mimeType"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return PhotoResult{}, fmt.Errorf("decode photo response: %w", err)
	}
	return PhotoResult{Bytes: decodeBase64(wire.BytesB64), MimeType: wire.MimeType, Filename: wire.Filename}, nil
}

func (s *MQTTSession) RequestLocation(ctx context.Context) (LocationEvent, error) {
	raw, err := s.request(ctx, "get_location", nil)
	if err != nil {
		return LocationEvent{}, err
	}
	var wire struct {
		Lat, Lng, Accuracy float64
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return LocationEvent{}, fmt.Errorf("decode location response: %w", err)
	}
	return LocationEvent{Lat: wire.Lat, Lng: wire.Lng, Accuracy: wire.Accuracy, FetchedAt: time.Now()}, nil
}

func (s *MQTTSession) Speak(ctx context.Context, text string) error {
	_, err := s.request(ctx, "speak", map[string]string{"text": text})
	return err
}

func (s *MQTTSession) ShowText(ctx context.Context, text string, duration time.Duration) error {
	_, err := s.request(ctx, "show_text", map[string]any{"text": text, "durationMs": duration.Milliseconds()})
	return err
}

func (s *MQTTSession) PlayAudio(ctx context.Context, url string) error {
	_, err := s.request(ctx, "play_audio", map[string]string{"url": url})
	return err
}

func (s *MQTTSession) StopAudio(ctx context.Context) error {
	_, err := s.request(ctx, "stop_audio", nil)
	return err
}

func (s *MQTTSession) Close() error {
	for _, suffix := range []string{"transcription", "location", "notification", "settings", "response/+"} {
		s.client.Unsubscribe(s.topic(suffix))
	}
	return nil
}
