package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"servotv/internal/audit"
	"servotv/internal/db"
	"servotv/internal/entitlement"
	"servotv/internal/models"
)

type ResellerHandler struct {
	resellers    *db.ResellerRepository
	users        *db.UserRepository
	devices      *db.DeviceRepository
	entitlements *db.EntitlementRepository
	sources      *db.PlaylistSourceRepository
	recorder     *audit.Recorder
}

func NewResellerHandler(
	resellers *db.ResellerRepository,
	users *db.UserRepository,
	devices *db.DeviceRepository,
	entitlements *db.EntitlementRepository,
	sources *db.PlaylistSourceRepository,
	recorder *audit.Recorder,
) *ResellerHandler {
	return &ResellerHandler{
		resellers:    resellers,
		users:        users,
		devices:      devices,
		entitlements: entitlements,
		sources:      sources,
		recorder:     recorder,
	}
}

// GET /api/v1/reseller/me
func (h *ResellerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	_, resellerID := GetSubject(r)

	reseller, err := h.resellers.FindByID(resellerID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Reseller not found")
		return
	}
	if err != nil {
		slog.Error("error loading reseller", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, reseller)
}

type UserSummary struct {
	User         *models.User        `json:"user"`
	Devices      []*models.Device    `json:"devices"`
	Subscription *models.Entitlement `json:"subscription,omitempty"`
	Active       bool                `json:"active"`
	DaysLeft     int                 `json:"daysLeft"`
}

// GET /api/v1/reseller/users returns the reseller's customers with their
// devices and entitlement status.
func (h *ResellerHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	_, resellerID := GetSubject(r)

	users, err := h.users.FindByReseller(resellerID)
	if err != nil {
		slog.Error("error listing users", "error", err)
		internalError(w)
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summary := UserSummary{User: user}

		devices, err := h.devices.FindByUser(user.ID)
		if err != nil {
			slog.Error("error loading user devices", "user_id", user.ID, "error", err)
			internalError(w)
			return
		}
		summary.Devices = devices

		ent, err := h.entitlements.FindActiveForUser(user.ID)
		if err == nil {
			summary.Subscription = ent
			summary.Active = entitlement.IsActive(ent, time.Now().UTC())
			summary.DaysLeft = subscriptionDays(ent)
		} else if !errors.Is(err, db.ErrNotFound) {
			slog.Error("error loading user entitlement", "user_id", user.ID, "error", err)
			internalError(w)
			return
		}

		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": summaries})
}

// GET /api/v1/reseller/topups
func (h *ResellerHandler) TopUpHistory(w http.ResponseWriter, r *http.Request) {
	_, resellerID := GetSubject(r)

	topups, err := h.resellers.TopUpHistory(resellerID)
	if err != nil {
		slog.Error("error loading top-up history", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"topups": topups})
}

// ownedUser loads a user and verifies it belongs to the requesting reseller.
func (h *ResellerHandler) ownedUser(w http.ResponseWriter, r *http.Request, userID string) (*models.User, bool) {
	_, resellerID := GetSubject(r)

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error loading user", "user_id", userID, "error", err)
		internalError(w)
		return nil, false
	}

	if user.ResellerID != resellerID {
		// A foreign user is indistinguishable from a missing one.
		notFound(w, "User not found")
		return nil, false
	}

	return user, true
}

type AddPlaylistSourceRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=64"`
	MediaLink string `json:"mediaLink" validate:"required,url,max=2048"`
}

// POST /api/v1/reseller/users/{id}/playlists
func (h *ResellerHandler) AddPlaylistSource(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownedUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req AddPlaylistSourceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	source, err := h.sources.Create(user.ID, req.Name, req.MediaLink)
	if err != nil {
		slog.Error("error creating playlist source", "user_id", user.ID, "error", err)
		internalError(w)
		return
	}

	_, resellerID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Reseller(resellerID),
		Action:       "playlist.add",
		ResourceType: "playlist_source",
		ResourceID:   source.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusCreated, source)
}

// GET /api/v1/reseller/users/{id}/playlists
func (h *ResellerHandler) ListPlaylistSources(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownedUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	sources, err := h.sources.FindByUser(user.ID)
	if err != nil {
		slog.Error("error listing playlist sources", "user_id", user.ID, "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"playlists": sources})
}

type SetPlaylistSourceStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// PATCH /api/v1/reseller/users/{id}/playlists/{sourceID}/status
func (h *ResellerHandler) SetPlaylistSourceStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownedUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	source, ok := h.ownedSource(w, user, chi.URLParam(r, "sourceID"))
	if !ok {
		return
	}

	var req SetPlaylistSourceStatusRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.sources.SetActive(source.ID, *req.IsActive); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Playlist source not found")
			return
		}
		slog.Error("error updating playlist source", "source_id", source.ID, "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Playlist source updated"})
}

// DELETE /api/v1/reseller/users/{id}/playlists/{sourceID}
func (h *ResellerHandler) DeletePlaylistSource(w http.ResponseWriter, r *http.Request) {
	user, ok := h.ownedUser(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	source, ok := h.ownedSource(w, user, chi.URLParam(r, "sourceID"))
	if !ok {
		return
	}

	if err := h.sources.Delete(source.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Playlist source not found")
			return
		}
		slog.Error("error deleting playlist source", "source_id", source.ID, "error", err)
		internalError(w)
		return
	}

	_, resellerID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Reseller(resellerID),
		Action:       "playlist.delete",
		ResourceType: "playlist_source",
		ResourceID:   source.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Playlist source deleted"})
}

func (h *ResellerHandler) ownedSource(w http.ResponseWriter, user *models.User, sourceID string) (*models.PlaylistSource, bool) {
	source, err := h.sources.FindByID(sourceID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Playlist source not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error loading playlist source", "source_id", sourceID, "error", err)
		internalError(w)
		return nil, false
	}

	if source.UserID != user.ID {
		notFound(w, "Playlist source not found")
		return nil, false
	}

	return source, true
}
