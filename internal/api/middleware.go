package api

import (
	"context"
	"net/http"
	"strings"

	"servotv/internal/auth"
)

type contextKey string

const (
	subjectTypeKey contextKey = "subjectType"
	subjectIDKey   contextKey = "subjectID"
	deviceUIDKey   contextKey = "deviceUID"
	deviceUserKey  contextKey = "deviceUserID"
)

type AuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	return parts[1], true
}

// RequirePanelAuth admits admins and resellers.
func (m *AuthMiddleware) RequirePanelAuth(next http.Handler) http.Handler {
	return m.requireSubject(next, auth.SubjectAdmin, auth.SubjectReseller)
}

func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.requireSubject(next, auth.SubjectAdmin)
}

func (m *AuthMiddleware) RequireReseller(next http.Handler) http.Handler {
	return m.requireSubject(next, auth.SubjectReseller)
}

func (m *AuthMiddleware) requireSubject(next http.Handler, allowed ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Authorization header required")
			return
		}

		claims, err := m.jwtService.ValidatePanelToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		permitted := false
		for _, subjectType := range allowed {
			if claims.SubjectType == subjectType {
				permitted = true
				break
			}
		}
		if !permitted {
			forbidden(w, ErrCodeForbidden, "Insufficient privileges")
			return
		}

		ctx := context.WithValue(r.Context(), subjectTypeKey, claims.SubjectType)
		ctx = context.WithValue(ctx, subjectIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireDevice admits a device session issued by device login.
func (m *AuthMiddleware) RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Authorization header required")
			return
		}

		claims, err := m.jwtService.ValidateDeviceToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), deviceUIDKey, claims.DeviceUID)
		ctx = context.WithValue(ctx, deviceUserKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalDevice populates device identity when a valid session token is
// presented but lets anonymous requests through. Stream token minting
// accepts either a session or an explicit device_id.
func (m *AuthMiddleware) OptionalDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if claims, err := m.jwtService.ValidateDeviceToken(token); err == nil {
				ctx := context.WithValue(r.Context(), deviceUIDKey, claims.DeviceUID)
				ctx = context.WithValue(ctx, deviceUserKey, claims.UserID)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func GetSubject(r *http.Request) (subjectType, subjectID string) {
	if v, ok := r.Context().Value(subjectTypeKey).(string); ok {
		subjectType = v
	}
	if v, ok := r.Context().Value(subjectIDKey).(string); ok {
		subjectID = v
	}
	return subjectType, subjectID
}

func GetDeviceUID(r *http.Request) string {
	if v, ok := r.Context().Value(deviceUIDKey).(string); ok {
		return v
	}
	return ""
}
