// Package stream implements the staged stream-authorization ladder: device
// login, stream token, playlist retrieval and play token. Every stage
// re-validates entitlement expiry; holding a token is never sufficient on its
// own.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/entitlement"
	"servotv/internal/models"
)

var (
	ErrDeviceNotActivated  = errors.New("device has not been activated")
	ErrDeviceUnbound       = errors.New("device is not bound to a user")
	ErrNoActivationRecord  = errors.New("device activation record not found")
	ErrNoSubscription      = errors.New("no subscription found")
	ErrSubscriptionExpired = errors.New("subscription has expired")
	ErrDeviceLimitExceeded = errors.New("maximum number of devices exceeded")
	ErrNoPlaylistSources   = errors.New("no media configured for this device")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

type Service struct {
	jwt            *auth.JWTService
	devices        *db.DeviceRepository
	users          *db.UserRepository
	pendingCodes   *db.PendingCodeRepository
	entitlements   *db.EntitlementRepository
	sources        *db.PlaylistSourceRepository
	streamTokens   *db.StreamTokenRepository
	playTokens     *db.PlayTokenRepository
	streamTokenTTL time.Duration
	playTokenTTL   time.Duration
}

func NewService(
	jwt *auth.JWTService,
	devices *db.DeviceRepository,
	users *db.UserRepository,
	pendingCodes *db.PendingCodeRepository,
	entitlements *db.EntitlementRepository,
	sources *db.PlaylistSourceRepository,
	streamTokens *db.StreamTokenRepository,
	playTokens *db.PlayTokenRepository,
	streamTokenTTL, playTokenTTL time.Duration,
) *Service {
	return &Service{
		jwt:            jwt,
		devices:        devices,
		users:          users,
		pendingCodes:   pendingCodes,
		entitlements:   entitlements,
		sources:        sources,
		streamTokens:   streamTokens,
		playTokens:     playTokens,
		streamTokenTTL: streamTokenTTL,
		playTokenTTL:   playTokenTTL,
	}
}

// Authorized is the result of the shared validation ladder: an active
// device, its user and the user's active entitlement.
type Authorized struct {
	Device      *models.Device
	User        *models.User
	Entitlement *models.Entitlement
}

// authorize walks the checks every stage shares: device active, bound to a
// user, entitlement present and unexpired.
func (s *Service) authorize(deviceUID string, now time.Time) (*Authorized, error) {
	device, err := s.devices.FindActiveByUID(deviceUID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrDeviceNotActivated
	}
	if err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}

	if device.UserID == nil {
		return nil, ErrDeviceUnbound
	}

	user, err := s.users.FindByID(*device.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrDeviceUnbound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	ent, err := s.entitlements.FindActiveForUser(user.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("loading entitlement: %w", err)
	}

	if !entitlement.IsActive(ent, now) {
		return nil, ErrSubscriptionExpired
	}

	return &Authorized{Device: device, User: user, Entitlement: ent}, nil
}

type LoginResult struct {
	Token        string
	TokenExpires time.Time
	Device       *models.Device
	User         *models.User
	Entitlement  *models.Entitlement
	DaysLeft     int
	Playlists    []*models.PlaylistSource
}

// Login is stage A. On top of the shared ladder it requires a consumed
// activation record and enforces the entitlement's device cap, then issues a
// device-scoped session token.
func (s *Service) Login(deviceUID, remoteIP string) (*LoginResult, error) {
	now := time.Now().UTC()

	authz, err := s.authorize(deviceUID, now)
	if err != nil {
		return nil, err
	}

	if _, err := s.pendingCodes.FindConsumedByDevice(deviceUID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNoActivationRecord
		}
		return nil, fmt.Errorf("loading activation record: %w", err)
	}

	activeCount, err := s.devices.CountActiveByUser(authz.User.ID)
	if err != nil {
		return nil, fmt.Errorf("counting active devices: %w", err)
	}
	if activeCount > authz.Entitlement.MaxDevices {
		return nil, ErrDeviceLimitExceeded
	}

	token, tokenExpires, err := s.jwt.GenerateDeviceToken(deviceUID, authz.User.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing device token: %w", err)
	}

	if err := s.devices.RecordLogin(authz.Device.ID, now, remoteIP); err != nil {
		slog.Error("error recording device login", "device_uid", deviceUID, "error", err)
	}

	sources, err := s.sources.FindActiveByUser(authz.User.ID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist sources: %w", err)
	}

	return &LoginResult{
		Token:        token,
		TokenExpires: tokenExpires,
		Device:       authz.Device,
		User:         authz.User,
		Entitlement:  authz.Entitlement,
		DaysLeft:     entitlement.DaysRemaining(authz.Entitlement, now),
		Playlists:    sources,
	}, nil
}

type StreamTokenResult struct {
	Token     string
	ExpiresAt time.Time
	Device    *models.Device
}

// MintStreamToken is stage B. The raw token is returned to the caller once;
// only its hash is stored.
func (s *Service) MintStreamToken(deviceUID string) (*StreamTokenResult, error) {
	now := time.Now().UTC()

	authz, err := s.authorize(deviceUID, now)
	if err != nil {
		return nil, err
	}

	sources, err := s.sources.FindActiveByUser(authz.User.ID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist sources: %w", err)
	}
	if len(sources) == 0 && authz.Device.MediaLink == nil {
		return nil, ErrNoPlaylistSources
	}

	raw, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generating stream token: %w", err)
	}

	expiresAt := now.Add(s.streamTokenTTL)
	if _, err := s.streamTokens.Replace(authz.Device.ID, auth.HashToken(raw), expiresAt); err != nil {
		return nil, fmt.Errorf("storing stream token: %w", err)
	}

	return &StreamTokenResult{
		Token:     raw,
		ExpiresAt: expiresAt,
		Device:    authz.Device,
	}, nil
}

// ResolveStreamToken is the authorization half of stage C: token → device,
// with a fresh entitlement check so a token never outlives the subscription.
func (s *Service) ResolveStreamToken(rawToken string) (*Authorized, error) {
	now := time.Now().UTC()

	stored, err := s.streamTokens.FindValidByHash(auth.HashToken(rawToken), now)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("resolving stream token: %w", err)
	}

	device, err := s.devices.FindByID(stored.DeviceID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}
	if !device.IsActive {
		return nil, ErrDeviceNotActivated
	}

	return s.authorize(device.DeviceUID, now)
}

// ActiveSourcesForToken resolves a stream token all the way to the playlist
// sources that aggregation should fetch. The device's legacy media_link, when
// set, participates as one more source so pre-multi-playlist devices keep
// working.
func (s *Service) ActiveSourcesForToken(rawToken string) ([]*models.PlaylistSource, error) {
	authz, err := s.ResolveStreamToken(rawToken)
	if err != nil {
		return nil, err
	}
	sources, err := s.sources.FindActiveByUser(authz.User.ID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist sources: %w", err)
	}

	if authz.Device.MediaLink != nil && *authz.Device.MediaLink != "" {
		sources = append([]*models.PlaylistSource{{
			UserID:    authz.User.ID,
			Name:      "default",
			MediaLink: *authz.Device.MediaLink,
			IsActive:  true,
		}}, sources...)
	}

	return sources, nil
}

type PlayTokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// MintPlayToken is stage D: capture the upstream URL server-side and hand
// back a short-lived opaque reference to it.
func (s *Service) MintPlayToken(deviceUID, streamURL, contentID, contentName string) (*PlayTokenResult, error) {
	now := time.Now().UTC()

	authz, err := s.authorize(deviceUID, now)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generating play token: %w", err)
	}

	expiresAt := now.Add(s.playTokenTTL)
	_, err = s.playTokens.Create(authz.Device.ID, authz.User.ID, auth.HashToken(raw), streamURL, contentID, contentName, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("storing play token: %w", err)
	}

	return &PlayTokenResult{Token: raw, ExpiresAt: expiresAt}, nil
}

// ResolvePlayToken returns the captured payload after re-validating the
// entitlement. The server only authorizes the URL handoff; it never proxies
// the media itself.
func (s *Service) ResolvePlayToken(rawToken string) (*models.PlayToken, error) {
	now := time.Now().UTC()

	stored, err := s.playTokens.FindValidByHash(auth.HashToken(rawToken), now)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("resolving play token: %w", err)
	}

	ent, err := s.entitlements.FindActiveForUser(stored.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("loading entitlement: %w", err)
	}
	if !entitlement.IsActive(ent, now) {
		return nil, ErrSubscriptionExpired
	}

	return stored, nil
}
