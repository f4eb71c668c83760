package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/pipeline"
	"github.com/snarg/session-engine/internal/registry"
)

// heartbeatInterval is the liveness tick period for every SSE topic.
const heartbeatInterval = 15 * time.Second

// writeDeadline bounds a single SSE frame write; a client too slow to drain
// its socket within this window is dropped rather than left to block the
// writer goroutine indefinitely.
const writeDeadline = 5 * time.Second

// historyMessage is one entry of a topic-chat `history` event.
type historyMessage struct {
	SenderID    string    `json:"senderId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Image       string    `json:"image,omitempty"`
}

// SSEHandler serves the three server-push topics (chat, transcription,
// photo). Each stream opens with a connected frame, an optional
// history/backlog replay, and an immediate heartbeat, then ticks periodic
// heartbeats until the client aborts.
type SSEHandler struct {
	bus         *eventbus.Bus
	registry    *registry.Registry
	chatHistory *chathistory.Manager
	window      time.Duration
}

// SSEOptions configures a new SSEHandler.
type SSEOptions struct {
	Bus           *eventbus.Bus
	Registry      *registry.Registry
	ChatHistory   *chathistory.Manager
	HistoryWindow time.Duration // defaults to pipeline.DefaultHistoryWindow
}

// NewSSEHandler constructs an SSEHandler.
func NewSSEHandler(opts SSEOptions) *SSEHandler {
	window := opts.HistoryWindow
	if window <= 0 {
		window = pipeline.DefaultHistoryWindow
	}
	return &SSEHandler{bus: opts.Bus, registry: opts.Registry, chatHistory: opts.ChatHistory, window: window}
}

// Chat serves GET /api/chat/stream?userId&recipientId.
func (h *SSEHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	recipientID := r.URL.Query().Get("recipientId")
	h.serve(w, r, userID, pipeline.ChatTopic, func(w http.ResponseWriter, flusher http.Flusher, hadPending bool) bool {
		if hadPending {
			return true
		}
		var messages []historyMessage
		for _, t := range h.chatHistory.RecentTurns(userID, h.window) {
			senderID, recip := userID, pipeline.AgentSenderID
			if t.Role == "assistant" {
				senderID, recip = pipeline.AgentSenderID, userID
			}
			if recipientID != "" && recip != recipientID && senderID != recipientID {
				continue
			}
			messages = append(messages, historyMessage{
				SenderID: senderID, RecipientID: recip, Content: t.Content,
				Timestamp: t.CreatedAt, Image: t.PhotoRef,
			})
		}
		// No turns (e.g. the user expired or never existed) means no history
		// frame at all, not an empty one.
		if len(messages) == 0 {
			return true
		}
		return writeSSE(w, flusher, map[string]any{"type": "history", "messages": messages})
	})
}

// Transcription serves GET /api/transcription-stream?userId.
func (h *SSEHandler) Transcription(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	h.serve(w, r, userID, "transcription", nil)
}

// Photo serves GET /api/photo-stream?userId.
func (h *SSEHandler) Photo(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	h.serve(w, r, userID, pipeline.PhotoTopic, nil)
}

// historyFn emits the history/backlog-suppression frame for a topic; chat is
// the only topic that has one. It returns false if the write failed.
type historyFn func(w http.ResponseWriter, flusher http.Flusher, hadPending bool) bool

func (h *SSEHandler) serve(w http.ResponseWriter, r *http.Request, userID, topic string, onConnect historyFn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	hadPending := h.bus.PendingLen(userID, topic) > 0
	ch, cancel := h.bus.Subscribe(userID, topic, eventbus.DefaultPendingCap)
	defer cancel()

	log := hlog.FromRequest(r)
	log.Info().Str("user_id", userID).Str("topic", topic).Msg("sse client connected")

	if !writeSSE(w, flusher, map[string]any{"type": "connected"}) {
		return
	}
	if onConnect != nil {
		if !onConnect(w, flusher, hadPending) {
			return
		}
	}

	// Drain whatever backlog Subscribe already loaded into ch's buffer before
	// falling through to the live/heartbeat loop — this is the "drain pending
	// FIFO" step, folded into the same channel used for live delivery so no
	// event can arrive out of order between the two phases.
draining:
	for {
		select {
		case ev := <-ch:
			if !writeSSE(w, flusher, ev.Data) {
				return
			}
		default:
			break draining
		}
	}

	if !h.writeHeartbeat(w, flusher, userID, topic) {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info().Str("user_id", userID).Str("topic", topic).Msg("sse client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !writeSSE(w, flusher, ev.Data) {
				return
			}
		case <-ticker.C:
			if !h.writeHeartbeat(w, flusher, userID, topic) {
				return
			}
		}
	}
}

// writeHeartbeat emits the liveness tick. Topic-chat carries an `active`
// flag derived from the registry; the other two topics are a bare
// {type: heartbeat}.
func (h *SSEHandler) writeHeartbeat(w http.ResponseWriter, flusher http.Flusher, userID, topic string) bool {
	if topic != pipeline.ChatTopic {
		return writeSSE(w, flusher, map[string]any{"type": "heartbeat"})
	}
	active := false
	if h.registry != nil {
		if u, ok := h.registry.Get(userID); ok {
			active = u.Connected()
		}
	}
	return writeSSE(w, flusher, map[string]any{"type": "session_heartbeat", "active": active})
}

// writeSSE marshals data as one `data: <json>\n\n` frame, applying a write
// deadline so a stalled client doesn't block this goroutine forever. It
// returns false (and the caller must stop serving this subscriber) on any
// write or deadline error.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}
	// Ignored: some ResponseWriters (e.g. httptest.Recorder) don't support
	// per-write deadlines; real deployments run behind net/http's server,
	// which does.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
