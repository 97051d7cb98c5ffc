package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"servotv/internal/activation"
	"servotv/internal/db"
	"servotv/internal/entitlement"
	"servotv/internal/models"
	"servotv/internal/stream"
)

type DeviceHandler struct {
	activations *activation.Service
	streams     *stream.Service
}

func NewDeviceHandler(activations *activation.Service, streams *stream.Service) *DeviceHandler {
	return &DeviceHandler{activations: activations, streams: streams}
}

type RegisterDeviceRequest struct {
	DeviceType     string `json:"device_type" validate:"omitempty,max=64"`
	ActualDeviceID string `json:"actual_device_id" validate:"omitempty,max=128"`
	DeviceIDSource string `json:"device_id_source" validate:"omitempty,max=64"`
}

type RegisterDeviceResponse struct {
	ActivationCode   string `json:"activation_code"`
	DeviceID         string `json:"device_id"`
	DeviceIDSource   string `json:"device_id_source"`
	ExpiresAt        string `json:"expires_at"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// POST /api/v1/device/register is the one anonymous endpoint: a device asks
// for the short code a reseller will redeem. Re-registering within the code's
// TTL returns the same code.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	source := req.DeviceIDSource
	if req.ActualDeviceID == "" {
		source = "generated"
	} else if source == "" {
		source = "client"
	}

	code, err := h.activations.Issue(req.DeviceType, req.ActualDeviceID)
	if err != nil {
		slog.Error("error issuing activation code", "error", err)
		internalError(w)
		return
	}

	now := time.Now().UTC()
	remaining := int(code.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	writeJSON(w, http.StatusOK, RegisterDeviceResponse{
		ActivationCode:   code.Code,
		DeviceID:         code.DeviceID,
		DeviceIDSource:   source,
		ExpiresAt:        code.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresInSeconds: remaining,
	})
}

type DeviceLoginRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=128"`
}

type SubscriptionInfo struct {
	Username       string `json:"username"`
	ExpirationDate string `json:"expiration_date"`
	IsLifetime     bool   `json:"is_lifetime"`
	DaysLeft       int    `json:"days_left"`
	MaxDevices     int    `json:"max_devices"`
}

type DeviceLoginResponse struct {
	Token        string                   `json:"token"`
	TokenExpires string                   `json:"token_expires"`
	Subscription SubscriptionInfo         `json:"subscription"`
	Playlists    []*models.PlaylistSource `json:"playlists"`
}

// POST /api/v1/device/login
func (h *DeviceHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req DeviceLoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.streams.Login(req.DeviceID, r.RemoteAddr)
	if err != nil {
		writeStreamError(w, err)
		return
	}

	expiration := ""
	if result.Entitlement.ExpiresAt != nil {
		expiration = result.Entitlement.ExpiresAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, DeviceLoginResponse{
		Token:        result.Token,
		TokenExpires: result.TokenExpires.UTC().Format(time.RFC3339),
		Subscription: SubscriptionInfo{
			Username:       result.User.Username,
			ExpirationDate: expiration,
			IsLifetime:     result.Entitlement.IsLifetime,
			DaysLeft:       result.DaysLeft,
			MaxDevices:     result.Entitlement.MaxDevices,
		},
		Playlists: result.Playlists,
	})
}

// writeStreamError maps the stream service's sentinels onto the error
// envelope. Shared by the device and stream handlers, which fail for the
// same reasons.
func writeStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrDeviceNotActivated),
		errors.Is(err, stream.ErrDeviceUnbound),
		errors.Is(err, stream.ErrNoActivationRecord):
		forbidden(w, ErrCodeForbidden, "Device has not been activated")
	case errors.Is(err, stream.ErrNoSubscription):
		forbidden(w, ErrCodeSubscriptionExpired, "No active subscription for this device")
	case errors.Is(err, stream.ErrSubscriptionExpired):
		forbidden(w, ErrCodeSubscriptionExpired, "Subscription has expired")
	case errors.Is(err, stream.ErrDeviceLimitExceeded):
		forbidden(w, ErrCodeDeviceLimit, "Maximum number of devices exceeded")
	case errors.Is(err, stream.ErrNoPlaylistSources):
		forbidden(w, ErrCodeNoMedia, "No media configured for this device")
	case errors.Is(err, stream.ErrInvalidToken):
		forbidden(w, ErrCodeTokenInvalid, "Invalid or expired token")
	case errors.Is(err, db.ErrNotFound):
		notFound(w, "Not found")
	default:
		slog.Error("stream authorization error", "error", err)
		internalError(w)
	}
}

// subscriptionDays is a small helper for panel views that show entitlement
// status next to a user.
func subscriptionDays(e *models.Entitlement) int {
	return entitlement.DaysRemaining(e, time.Now().UTC())
}
