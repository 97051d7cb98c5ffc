package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"servotv/internal/playlist"
	"servotv/internal/stream"
)

type StreamHandler struct {
	streams    *stream.Service
	aggregator *playlist.Aggregator
	baseURL    string
}

func NewStreamHandler(streams *stream.Service, aggregator *playlist.Aggregator, baseURL string) *StreamHandler {
	return &StreamHandler{
		streams:    streams,
		aggregator: aggregator,
		baseURL:    baseURL,
	}
}

type StreamTokenRequest struct {
	DeviceID string `json:"device_id" validate:"omitempty,max=128"`
}

type StreamTokenResponse struct {
	PlaylistURL  string `json:"playlist_url"`
	Token        string `json:"token"`
	TokenExpires string `json:"token_expires"`
}

// POST /api/v1/stream/token accepts either a device session or an explicit
// device_id in the body; legacy players do not hold a session when they ask
// for their playlist URL.
func (h *StreamHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	var req StreamTokenRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r.Body, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	deviceUID := GetDeviceUID(r)
	if deviceUID == "" {
		deviceUID = req.DeviceID
	}
	if deviceUID == "" {
		unauthorized(w, "Device session or device_id required")
		return
	}

	result, err := h.streams.MintStreamToken(deviceUID)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StreamTokenResponse{
		PlaylistURL:  fmt.Sprintf("%s/api/v1/stream/playlist?token=%s", h.baseURL, result.Token),
		Token:        result.Token,
		TokenExpires: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GET /api/v1/stream/playlist?token=... serves the merged M3U document. An
// empty source list is a valid empty playlist, not an error.
func (h *StreamHandler) Playlist(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "token query parameter is required")
		return
	}

	sources, err := h.streams.ActiveSourcesForToken(token)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	// The aggregation deadline is independent of the client connection so a
	// slow upstream cannot be confused with a gone client.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	body := h.aggregator.Merge(ctx, sources)

	w.Header().Set("Content-Type", "application/x-mpegurl")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

type PlayRequest struct {
	StreamURL   string `json:"stream_url" validate:"required,url,max=4096"`
	ContentID   string `json:"content_id" validate:"omitempty,max=128"`
	ContentName string `json:"content_name" validate:"omitempty,max=256"`
}

type PlayResponse struct {
	PlayToken string `json:"play_token"`
	ExpiresAt string `json:"expires_at"`
}

// POST /api/v1/stream/play (device session) captures the upstream URL and
// answers with a short-lived opaque reference to it.
func (h *StreamHandler) Play(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	deviceUID := GetDeviceUID(r)
	if deviceUID == "" {
		unauthorized(w, "Device session required")
		return
	}

	result, err := h.streams.MintPlayToken(deviceUID, req.StreamURL, req.ContentID, req.ContentName)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PlayResponse{
		PlayToken: result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type LiveResponse struct {
	PlayURL     string `json:"play_url"`
	ContentID   string `json:"content_id,omitempty"`
	ContentName string `json:"content_name,omitempty"`
}

// GET /api/v1/stream/live?token=... resolves a play token back into the
// captured URL.
func (h *StreamHandler) Live(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "token query parameter is required")
		return
	}

	stored, err := h.streams.ResolvePlayToken(token)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LiveResponse{
		PlayURL:     stored.StreamURL,
		ContentID:   stored.ContentID,
		ContentName: stored.ContentName,
	})
}
