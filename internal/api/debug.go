package api

import (
	"net/http"

	"github.com/snarg/session-engine/internal/registry"
)

// DebugHandler exposes operator-only session manipulation for local testing
// and demos. NewServer only mounts it when Config.DebugEndpoints is set.
type DebugHandler struct {
	registry *registry.Registry
}

// NewDebugHandler constructs a DebugHandler.
func NewDebugHandler(reg *registry.Registry) *DebugHandler {
	return &DebugHandler{registry: reg}
}

// KillSession handles POST /api/debug/kill-session?userId&mode=soft|hard.
// Soft mode exercises the grace-period/reconnect path exactly as a real
// hardware disconnect would; hard mode tears the user down immediately.
func (h *DebugHandler) KillSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "soft"
	}

	if _, exists := h.registry.Get(userID); !exists {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown user")
		return
	}

	switch mode {
	case "soft":
		h.registry.SoftRemove(userID)
	case "hard":
		h.registry.Remove(userID)
	default:
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "mode must be soft or hard")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"userId": userID, "mode": mode})
}
