package api

import (
	"net/http"
	"sync"

	"github.com/snarg/session-engine/internal/settingsstore"
)

// SettingsHandler serves the per-user settings endpoint and the standalone
// UI theme-preference endpoint. The latter is a single process-wide value —
// it controls the companion dashboard's own look, not any one user's session
// — so it's kept as an in-memory value guarded by its own mutex rather than
// living in settingsstore, which is keyed by userId.
type SettingsHandler struct {
	store *settingsstore.Store

	themeMu sync.RWMutex
	theme   string
}

// NewSettingsHandler constructs a SettingsHandler. defaultTheme seeds the
// standalone UI preference before any POST /api/theme-preference call.
func NewSettingsHandler(store *settingsstore.Store, defaultTheme string) *SettingsHandler {
	return &SettingsHandler{store: store, theme: defaultTheme}
}

// ThemePreference handles GET/POST /api/theme-preference.
func (h *SettingsHandler) ThemePreference(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.themeMu.RLock()
		theme := h.theme
		h.themeMu.RUnlock()
		WriteJSON(w, http.StatusOK, map[string]string{"theme": theme})
	case http.MethodPost:
		var req struct {
			Theme string `json:"theme"`
		}
		if err := DecodeJSON(r, &req); err != nil || req.Theme == "" {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "theme is required")
			return
		}
		h.themeMu.Lock()
		h.theme = req.Theme
		h.themeMu.Unlock()
		WriteJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
	default:
		WriteErrorWithCode(w, http.StatusMethodNotAllowed, ErrBadRequest, "method not allowed")
	}
}

type userSettings struct {
	Theme              string `json:"theme,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
	ChatHistoryEnabled bool   `json:"chatHistoryEnabled"`
}

// extraChatHistoryKey stores the chatHistoryEnabled flag inside Entry.Extra,
// the catch-all bag for settings that don't warrant their own Entry field.
const extraChatHistoryKey = "chatHistoryEnabled"

// Settings handles GET/PATCH /api/settings?userId.
func (h *SettingsHandler) Settings(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry := h.store.Get(userID)
		WriteJSON(w, http.StatusOK, entryToSettings(entry))

	case http.MethodPatch:
		entry := h.store.Get(userID)
		var patch struct {
			Theme              *string `json:"theme"`
			Timezone           *string `json:"timezone"`
			ChatHistoryEnabled *bool   `json:"chatHistoryEnabled"`
		}
		if err := DecodeJSON(r, &patch); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
			return
		}
		if patch.Theme != nil {
			entry.Theme = *patch.Theme
		}
		if patch.Timezone != nil {
			entry.Timezone = *patch.Timezone
		}
		if patch.ChatHistoryEnabled != nil {
			if entry.Extra == nil {
				entry.Extra = make(map[string]string)
			}
			if *patch.ChatHistoryEnabled {
				entry.Extra[extraChatHistoryKey] = "true"
			} else {
				entry.Extra[extraChatHistoryKey] = "false"
			}
		}
		if err := h.store.Set(userID, entry); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		WriteJSON(w, http.StatusOK, entryToSettings(entry))

	default:
		WriteErrorWithCode(w, http.StatusMethodNotAllowed, ErrBadRequest, "method not allowed")
	}
}

func entryToSettings(e settingsstore.Entry) userSettings {
	return userSettings{
		Theme:              e.Theme,
		Timezone:           e.Timezone,
		ChatHistoryEnabled: e.Extra[extraChatHistoryKey] == "true",
	}
}
