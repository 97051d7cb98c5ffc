package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"servotv/internal/audit"
	"servotv/internal/auth"
	"servotv/internal/db"
)

type AdminHandler struct {
	resellers     *db.ResellerRepository
	users         *db.UserRepository
	devices       *db.DeviceRepository
	entitlements  *db.EntitlementRepository
	refreshTokens *db.RefreshTokenRepository
	streamTokens  *db.StreamTokenRepository
	recorder      *audit.Recorder
}

func NewAdminHandler(
	resellers *db.ResellerRepository,
	users *db.UserRepository,
	devices *db.DeviceRepository,
	entitlements *db.EntitlementRepository,
	refreshTokens *db.RefreshTokenRepository,
	streamTokens *db.StreamTokenRepository,
	recorder *audit.Recorder,
) *AdminHandler {
	return &AdminHandler{
		resellers:     resellers,
		users:         users,
		devices:       devices,
		entitlements:  entitlements,
		refreshTokens: refreshTokens,
		streamTokens:  streamTokens,
		recorder:      recorder,
	}
}

type CreateResellerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=128"`
	Country  string `json:"country" validate:"omitempty,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// POST /api/v1/admin/resellers
func (h *AdminHandler) CreateReseller(w http.ResponseWriter, r *http.Request) {
	var req CreateResellerRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("error hashing reseller password", "error", err)
		internalError(w)
		return
	}

	reseller, err := h.resellers.Create(req.Name, req.Country, strings.ToLower(strings.TrimSpace(req.Email)), passwordHash)
	if errors.Is(err, db.ErrDuplicate) {
		conflict(w, "A reseller with this email already exists")
		return
	}
	if err != nil {
		slog.Error("error creating reseller", "error", err)
		internalError(w)
		return
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "reseller.create",
		ResourceType: "reseller",
		ResourceID:   reseller.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusCreated, reseller)
}

// GET /api/v1/admin/resellers
func (h *AdminHandler) ListResellers(w http.ResponseWriter, r *http.Request) {
	resellers, err := h.resellers.FindAll()
	if err != nil {
		slog.Error("error listing resellers", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resellers": resellers})
}

type SetResellerStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// PATCH /api/v1/admin/resellers/{id}/status enables or disables a reseller.
// Disabling also revokes every live panel session.
func (h *AdminHandler) SetResellerStatus(w http.ResponseWriter, r *http.Request) {
	resellerID := chi.URLParam(r, "id")

	var req SetResellerStatusRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	err := h.resellers.SetActive(resellerID, *req.IsActive)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Reseller not found")
		return
	}
	if err != nil {
		slog.Error("error updating reseller status", "error", err)
		internalError(w)
		return
	}

	if !*req.IsActive {
		if err := h.refreshTokens.RevokeAllForSubject(auth.SubjectReseller, resellerID); err != nil {
			slog.Error("error revoking reseller sessions", "reseller_id", resellerID, "error", err)
		}
	}

	action := "reseller.disable"
	if *req.IsActive {
		action = "reseller.enable"
	}
	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       action,
		ResourceType: "reseller",
		ResourceID:   resellerID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Reseller updated"})
}

type CreditPointsRequest struct {
	Points        int     `json:"points" validate:"required,min=1,max=100000"`
	AmountUSD     float64 `json:"amountUsd" validate:"min=0"`
	InvoiceNumber string  `json:"invoiceNumber" validate:"omitempty,max=64"`
}

// POST /api/v1/admin/resellers/{id}/credit records a top-up and credits the
// points balance.
func (h *AdminHandler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	resellerID := chi.URLParam(r, "id")

	var req CreditPointsRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	topup, err := h.resellers.CreditPoints(resellerID, req.Points, req.AmountUSD, req.InvoiceNumber)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Reseller not found")
		return
	}
	if err != nil {
		slog.Error("error crediting points", "reseller_id", resellerID, "error", err)
		internalError(w)
		return
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "reseller.credit",
		ResourceType: "reseller",
		ResourceID:   resellerID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusCreated, topup)
}

// GET /api/v1/admin/resellers/{id}/users
func (h *AdminHandler) ListResellerUsers(w http.ResponseWriter, r *http.Request) {
	resellerID := chi.URLParam(r, "id")

	if _, err := h.resellers.FindByID(resellerID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Reseller not found")
			return
		}
		slog.Error("error loading reseller", "error", err)
		internalError(w)
		return
	}

	users, err := h.users.FindByReseller(resellerID)
	if err != nil {
		slog.Error("error listing reseller users", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type DisableDeviceRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// POST /api/v1/admin/devices/{id}/disable
func (h *AdminHandler) DisableDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req DisableDeviceRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r.Body, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "disabled by admin"
	}

	err := h.devices.Disable(deviceID, req.Reason)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Device not found")
		return
	}
	if err != nil {
		slog.Error("error disabling device", "device_id", deviceID, "error", err)
		internalError(w)
		return
	}

	// A disabled device must not keep streaming on an already-issued token.
	if err := h.streamTokens.RevokeForDevice(deviceID); err != nil {
		slog.Error("error revoking stream token", "device_id", deviceID, "error", err)
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "device.disable",
		Description:  req.Reason,
		ResourceType: "device",
		ResourceID:   deviceID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Device disabled"})
}

// POST /api/v1/admin/devices/{id}/enable
func (h *AdminHandler) EnableDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	err := h.devices.Enable(deviceID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Device not found")
		return
	}
	if err != nil {
		slog.Error("error enabling device", "device_id", deviceID, "error", err)
		internalError(w)
		return
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "device.enable",
		ResourceType: "device",
		ResourceID:   deviceID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Device enabled"})
}

// POST /api/v1/admin/users/{id}/subscription/expire force-expires the user's
// active entitlement, deactivating their devices and revoking stream tokens
// in the same transaction.
func (h *AdminHandler) ForceExpireSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	ent, err := h.entitlements.FindActiveForUser(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "No subscription found for this user")
		return
	}
	if err != nil {
		slog.Error("error loading entitlement", "user_id", userID, "error", err)
		internalError(w)
		return
	}

	if err := h.entitlements.ForceExpire(ent.ID); err != nil {
		slog.Error("error force-expiring entitlement", "entitlement_id", ent.ID, "error", err)
		internalError(w)
		return
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "subscription.force_expire",
		ResourceType: "entitlement",
		ResourceID:   ent.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription expired"})
}
