package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"servotv/internal/constants"
)

// Panel subject types carried in claims and refresh token rows.
const (
	SubjectAdmin    = "admin"
	SubjectReseller = "reseller"
)

type JWTService struct {
	secret           []byte
	accessTokenTTL   time.Duration
	refreshTokenTTL  time.Duration
	deviceSessionTTL time.Duration
}

// PanelClaims authenticates an admin or reseller on the management API.
type PanelClaims struct {
	SubjectType string `json:"subjectType"`
	jwt.RegisteredClaims
}

// DeviceClaims authenticates a bound device after a successful device login.
// It deliberately carries no panel privileges.
type DeviceClaims struct {
	DeviceUID string `json:"deviceUid"`
	UserID    string `json:"userId"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func NewJWTService(secret string, accessTTL, refreshTTL, deviceTTL time.Duration) *JWTService {
	return &JWTService{
		secret:           []byte(secret),
		accessTokenTTL:   accessTTL,
		refreshTokenTTL:  refreshTTL,
		deviceSessionTTL: deviceTTL,
	}
}

// GeneratePanelTokenPair issues an access token plus a raw refresh token.
// The second return value is the refresh token's sha256 hash, which is what
// gets persisted; the raw value goes only to the client.
func (s *JWTService) GeneratePanelTokenPair(subjectType, subjectID string) (*TokenPair, string, error) {
	accessExpiry := time.Now().Add(s.accessTokenTTL)
	claims := PanelClaims{
		SubjectType: subjectType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subjectID,
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, "", fmt.Errorf("signing access token: %w", err)
	}

	refreshTokenRaw, err := GenerateOpaqueToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenRaw,
		ExpiresAt:    accessExpiry,
	}, HashToken(refreshTokenRaw), nil
}

func (s *JWTService) GenerateDeviceToken(deviceUID, userID string) (string, time.Time, error) {
	expiry := time.Now().Add(s.deviceSessionTTL)
	claims := DeviceClaims{
		DeviceUID: deviceUID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   deviceUID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing device token: %w", err)
	}

	return token, expiry, nil
}

func (s *JWTService) ValidatePanelToken(tokenString string) (*PanelClaims, error) {
	claims := &PanelClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.SubjectType != SubjectAdmin && claims.SubjectType != SubjectReseller {
		return nil, fmt.Errorf("invalid subject type %q", claims.SubjectType)
	}
	return claims, nil
}

func (s *JWTService) ValidateDeviceToken(tokenString string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.DeviceUID == "" {
		return nil, fmt.Errorf("missing device claim")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token claims")
	}
	return nil
}

func (s *JWTService) RefreshTokenExpiry() time.Time {
	return time.Now().Add(s.refreshTokenTTL)
}

// GenerateOpaqueToken mints a URL-safe random token for the stream, play and
// refresh token stages.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, constants.OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the at-rest form of every opaque token. Lookups go through the
// hash so a database leak does not leak usable credentials.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
