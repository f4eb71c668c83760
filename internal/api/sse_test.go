package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/pipeline"
)

// collectFrames decodes the `data:` frames of a finished SSE response body
// in write order.
func collectFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		payload := strings.TrimPrefix(chunk, "data: ")
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &frame), "frame %q", payload)
		frames = append(frames, frame)
	}
	return frames
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i], _ = f["type"].(string)
	}
	return types
}

func newTestSSEHandler(bus *eventbus.Bus, history *chathistory.Manager) *SSEHandler {
	return NewSSEHandler(SSEOptions{Bus: bus, Registry: nil, ChatHistory: history})
}

func TestChatStreamUnknownUserConnectedAndInactiveHeartbeatOnly(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	h := newTestSSEHandler(bus, chathistory.New(chathistory.Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/stream?userId=ghost", nil).WithContext(ctx)

	h.Chat(rec, req)

	frames := collectFrames(t, rec.Body.String())
	require.Equal(t, []string{"connected", "session_heartbeat"}, frameTypes(frames))
	require.Equal(t, false, frames[1]["active"])
}

func TestChatStreamReplaysHistoryWhenNoPending(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	history := chathistory.New(chathistory.Options{})
	history.AddTurn("u1", chathistory.Turn{Role: "user", Content: "what time is it", CreatedAt: time.Now()})
	history.AddTurn("u1", chathistory.Turn{Role: "assistant", Content: "It is three o'clock.", CreatedAt: time.Now()})
	h := newTestSSEHandler(bus, history)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/stream?userId=u1", nil).WithContext(ctx)

	h.Chat(rec, req)

	frames := collectFrames(t, rec.Body.String())
	require.Equal(t, []string{"connected", "history", "session_heartbeat"}, frameTypes(frames))

	messages := frames[1]["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	require.Equal(t, "u1", first["senderId"])
	require.Equal(t, "what time is it", first["content"])
	second := messages[1].(map[string]any)
	require.Equal(t, pipeline.AgentSenderID, second["senderId"])
}

func TestChatStreamPendingFlushSuppressesHistory(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	history := chathistory.New(chathistory.Options{})
	history.AddTurn("u1", chathistory.Turn{Role: "user", Content: "older turn", CreatedAt: time.Now()})
	h := newTestSSEHandler(bus, history)

	// An in-flight turn was broadcast before any subscriber attached; its
	// events sit in the pending FIFO and are the canonical replay.
	bus.Broadcast("u1", pipeline.ChatTopic, pipeline.ChatEvent{Type: "processing", Timestamp: time.Now()})
	bus.Broadcast("u1", pipeline.ChatTopic, pipeline.ChatEvent{
		Type: "message", SenderID: "u1", Content: "what time is it", Timestamp: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/stream?userId=u1", nil).WithContext(ctx)

	h.Chat(rec, req)

	frames := collectFrames(t, rec.Body.String())
	require.Equal(t, []string{"connected", "processing", "message", "session_heartbeat"}, frameTypes(frames))
	require.NotContains(t, frameTypes(frames), "history")
	require.Equal(t, "what time is it", frames[2]["content"])
}

func TestTranscriptionStreamHeartbeat(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	h := newTestSSEHandler(bus, chathistory.New(chathistory.Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/transcription-stream?userId=u1", nil).WithContext(ctx)

	h.Transcription(rec, req)

	frames := collectFrames(t, rec.Body.String())
	require.Equal(t, []string{"connected", "heartbeat"}, frameTypes(frames))
}

func TestSSEHeadersDisableBuffering(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	h := newTestSSEHandler(bus, chathistory.New(chathistory.Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/photo-stream?userId=u1", nil).WithContext(ctx)

	h.Photo(rec, req)

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestMissingUserIDRejected(t *testing.T) {
	bus := eventbus.New(eventbus.Options{Log: zerolog.Nop()})
	h := newTestSSEHandler(bus, chathistory.New(chathistory.Options{}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/chat/stream", nil)
	h.Chat(rec, req)
	require.Equal(t, 400, rec.Code)
}
