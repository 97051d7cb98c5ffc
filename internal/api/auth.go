package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"servotv/internal/audit"
	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/models"
)

type AuthHandler struct {
	admins        *db.AdminRepository
	resellers     *db.ResellerRepository
	refreshTokens *db.RefreshTokenRepository
	jwtService    *auth.JWTService
	recorder      *audit.Recorder
}

func NewAuthHandler(
	admins *db.AdminRepository,
	resellers *db.ResellerRepository,
	refreshTokens *db.RefreshTokenRepository,
	jwtService *auth.JWTService,
	recorder *audit.Recorder,
) *AuthHandler {
	return &AuthHandler{
		admins:        admins,
		resellers:     resellers,
		refreshTokens: refreshTokens,
		jwtService:    jwtService,
		recorder:      recorder,
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type AdminLoginResponse struct {
	Admin        *models.Admin `json:"admin"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    string        `json:"expiresAt"`
}

type ResellerLoginResponse struct {
	Reseller     *models.Reseller `json:"reseller"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresAt    string           `json:"expiresAt"`
}

// POST /api/v1/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	admin, err := h.admins.FindByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, db.ErrNotFound) {
		// Burn a bcrypt compare so a missing account costs the same as a
		// wrong password.
		auth.CheckPassword(auth.DummyHash, req.Password)
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("error finding admin", "error", err)
		internalError(w)
		return
	}

	if !auth.CheckPassword(admin.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}

	pair, refreshHash, err := h.jwtService.GeneratePanelTokenPair(auth.SubjectAdmin, admin.ID)
	if err != nil {
		slog.Error("error generating admin session", "error", err)
		internalError(w)
		return
	}

	if _, err := h.refreshTokens.Create(auth.SubjectAdmin, admin.ID, refreshHash, h.jwtService.RefreshTokenExpiry()); err != nil {
		slog.Error("error storing refresh token", "error", err)
		internalError(w)
		return
	}

	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(admin.ID),
		Action:       "admin.login",
		ResourceType: "admin",
		ResourceID:   admin.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, AdminLoginResponse{
		Admin:        admin,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// POST /api/v1/auth/reseller/login
func (h *AuthHandler) ResellerLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	reseller, err := h.resellers.FindByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, db.ErrNotFound) {
		auth.CheckPassword(auth.DummyHash, req.Password)
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("error finding reseller", "error", err)
		internalError(w)
		return
	}

	if !auth.CheckPassword(reseller.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}

	if !reseller.IsActive {
		forbidden(w, ErrCodeForbidden, "Account is disabled")
		return
	}

	pair, refreshHash, err := h.jwtService.GeneratePanelTokenPair(auth.SubjectReseller, reseller.ID)
	if err != nil {
		slog.Error("error generating reseller session", "error", err)
		internalError(w)
		return
	}

	if _, err := h.refreshTokens.Create(auth.SubjectReseller, reseller.ID, refreshHash, h.jwtService.RefreshTokenExpiry()); err != nil {
		slog.Error("error storing refresh token", "error", err)
		internalError(w)
		return
	}

	h.recorder.Record(audit.Entry{
		Actor:        audit.Reseller(reseller.ID),
		Action:       "reseller.login",
		ResourceType: "reseller",
		ResourceID:   reseller.ID,
		IPAddress:    r.RemoteAddr,
	})

	writeJSON(w, http.StatusOK, ResellerLoginResponse{
		Reseller:     reseller,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// POST /api/v1/auth/refresh rotates the refresh token: the presented token
// is revoked and a successor issued in one transaction, so a replayed token
// fails closed.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	stored, err := h.refreshTokens.FindByHash(auth.HashToken(req.RefreshToken))
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding refresh token", "error", err)
		internalError(w)
		return
	}

	if stored.RevokedAt != nil || time.Now().UTC().After(stored.ExpiresAt) {
		unauthorized(w, "Invalid refresh token")
		return
	}

	// Disabled resellers lose their sessions at the refresh boundary.
	if stored.SubjectType == auth.SubjectReseller {
		reseller, err := h.resellers.FindByID(stored.SubjectID)
		if err != nil || !reseller.IsActive {
			unauthorized(w, "Invalid refresh token")
			return
		}
	}

	pair, newHash, err := h.jwtService.GeneratePanelTokenPair(stored.SubjectType, stored.SubjectID)
	if err != nil {
		slog.Error("error generating rotated session", "error", err)
		internalError(w)
		return
	}

	err = h.refreshTokens.Rotate(stored.ID, stored.SubjectType, stored.SubjectID, newHash, h.jwtService.RefreshTokenExpiry())
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error rotating refresh token", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	subjectType, subjectID := GetSubject(r)

	stored, err := h.refreshTokens.FindByHash(auth.HashToken(req.RefreshToken))
	if errors.Is(err, db.ErrNotFound) {
		// Already gone; logout is idempotent.
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
		return
	}
	if err != nil {
		slog.Error("error finding refresh token", "error", err)
		internalError(w)
		return
	}

	if stored.SubjectType != subjectType || stored.SubjectID != subjectID {
		forbidden(w, ErrCodeForbidden, "Token does not belong to this session")
		return
	}

	if err := h.refreshTokens.Revoke(stored.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		slog.Error("error revoking refresh token", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
