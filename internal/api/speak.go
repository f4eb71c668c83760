package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/session-engine/internal/registry"
)

// hardwareCallTimeout bounds the speak/stop-audio passthrough calls, same
// default the pipeline uses for its own hardware round trips.
const hardwareCallTimeout = 8 * time.Second

// SpeakHandler passes a caller-supplied utterance straight to a user's
// hardware session, bypassing the query pipeline and agent entirely — for
// companion-app-triggered announcements rather than conversational replies.
type SpeakHandler struct {
	registry *registry.Registry
}

// NewSpeakHandler constructs a SpeakHandler.
func NewSpeakHandler(reg *registry.Registry) *SpeakHandler {
	return &SpeakHandler{registry: reg}
}

type speakRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// Speak handles POST /api/speak.
func (h *SpeakHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Text == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "userId and text are required")
		return
	}

	u, ok := h.registry.Get(req.UserID)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown user")
		return
	}
	sess := u.HardwareSession()
	if sess == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, "user has no live hardware session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), hardwareCallTimeout)
	defer cancel()
	if err := sess.Speak(ctx, req.Text); err != nil {
		WriteErrorWithCode(w, http.StatusBadGateway, ErrUnavailable, "hardware speak failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type stopAudioRequest struct {
	UserID string `json:"userId"`
}

// StopAudio handles POST /api/stop-audio.
func (h *SpeakHandler) StopAudio(w http.ResponseWriter, r *http.Request) {
	var req stopAudioRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "userId is required")
		return
	}

	u, ok := h.registry.Get(req.UserID)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown user")
		return
	}
	sess := u.HardwareSession()
	if sess == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, "user has no live hardware session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), hardwareCallTimeout)
	defer cancel()
	if err := sess.StopAudio(ctx); err != nil {
		WriteErrorWithCode(w, http.StatusBadGateway, ErrUnavailable, "hardware stop-audio failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
