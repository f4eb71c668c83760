package api

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/session-engine/internal/photostore"
)

// PhotoHandler serves captured photos over HTTP: the most recent one for a
// user, a specific one by request ID, and a base64-text variant of the
// latter for clients that can't handle binary responses.
type PhotoHandler struct {
	store *photostore.Store
}

// NewPhotoHandler constructs a PhotoHandler.
func NewPhotoHandler(store *photostore.Store) *PhotoHandler {
	return &PhotoHandler{store: store}
}

// Latest handles GET /api/latest-photo?userId.
func (h *PhotoHandler) Latest(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUserID(w, r)
	if !ok {
		return
	}
	p, ok := h.store.Latest(userID)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "no photo available for this user")
		return
	}
	writePhotoBinary(w, p)
}

// ByRequestID handles GET /api/photo/:requestId.
func (h *PhotoHandler) ByRequestID(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	p, ok := h.store.Lookup(r.Context(), requestID)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown photo request id")
		return
	}
	writePhotoBinary(w, p)
}

// Base64 handles GET /api/photo-base64/:requestId.
func (h *PhotoHandler) Base64(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	p, ok := h.store.Lookup(r.Context(), requestID)
	if !ok {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown photo request id")
		return
	}
	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Bytes)))
}

func writePhotoBinary(w http.ResponseWriter, p photostore.Photo) {
	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	w.Header().Set("Content-Type", mimeType)
	if p.Filename != "" {
		w.Header().Set("Content-Disposition", "inline; filename=\""+p.Filename+"\"")
	}
	w.Write(p.Bytes)
}
