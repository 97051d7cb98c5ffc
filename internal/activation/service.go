// Package activation implements the device activation state machine: a
// registering device receives a short-lived pending code, and a reseller
// redeems that code into a (user, entitlement, device) binding.
package activation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/entitlement"
	"servotv/internal/models"
)

var (
	ErrCodeNotFound       = errors.New("activation code not found")
	ErrCodeUsed           = db.ErrCodeUsed
	ErrCodeExpired        = db.ErrCodeExpired
	ErrInvalidKind        = errors.New("invalid subscription duration")
	ErrInsufficientPoints = db.ErrInsufficientPoints
	ErrResellerInactive   = errors.New("reseller is not active")
	ErrUsernameTaken      = errors.New("username already taken")
)

// issuanceRetries bounds the insert-retry loop that resolves concurrent
// registration races on the same device identifier.
const issuanceRetries = 3

type Service struct {
	codes       *auth.ActivationCodeService
	pendingRepo *db.PendingCodeRepository
	redemptions *db.RedemptionRepository
	resellers   *db.ResellerRepository
	users       *db.UserRepository
}

func NewService(
	codes *auth.ActivationCodeService,
	pendingRepo *db.PendingCodeRepository,
	redemptions *db.RedemptionRepository,
	resellers *db.ResellerRepository,
	users *db.UserRepository,
) *Service {
	return &Service{
		codes:       codes,
		pendingRepo: pendingRepo,
		redemptions: redemptions,
		resellers:   resellers,
		users:       users,
	}
}

// Issue returns the live pending code for a device identifier, minting a
// fresh one only when none exists. Issuance is idempotent within the TTL
// window: two registrations of the same device see the same code.
func (s *Service) Issue(deviceType, deviceID string) (*models.PendingCode, error) {
	now := time.Now().UTC()

	if deviceID == "" {
		deviceID = GenerateDeviceID()
	}
	if deviceType == "" {
		deviceType = "unknown"
	}

	for attempt := 0; attempt < issuanceRetries; attempt++ {
		existing, err := s.pendingRepo.FindLiveByDevice(deviceID, now)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("looking up live code: %w", err)
		}

		code, err := s.codes.GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generating activation code: %w", err)
		}

		created, err := s.pendingRepo.Insert(code, deviceID, deviceType, s.codes.ExpiresAt())
		if err == nil {
			slog.Info("issued activation code", "device_id", deviceID, "expires_at", created.ExpiresAt)
			return created, nil
		}
		if errors.Is(err, db.ErrDuplicate) {
			// Lost the race against a concurrent registration; the next
			// iteration reads the winner's code.
			continue
		}
		return nil, fmt.Errorf("storing activation code: %w", err)
	}

	return nil, fmt.Errorf("issuing code for device %s: retries exhausted", deviceID)
}

type RedeemRequest struct {
	ResellerID string
	Code       string
	Kind       entitlement.Kind
	Username   string
	MediaLink  string
}

// Redeem runs the precondition ladder, then hands the atomic part to the
// redemption transaction. Each precondition failure is distinct so the API
// can answer with the exact reason.
func (s *Service) Redeem(req RedeemRequest) (*db.RedeemResult, error) {
	reseller, err := s.resellers.FindByID(req.ResellerID)
	if err != nil {
		return nil, fmt.Errorf("loading reseller: %w", err)
	}
	if !reseller.IsActive {
		return nil, ErrResellerInactive
	}

	pending, err := s.pendingRepo.FindByCode(req.Code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up code: %w", err)
	}

	now := time.Now().UTC()
	if pending.IsUsed() {
		return nil, ErrCodeUsed
	}
	if !pending.ExpiresAt.After(now) {
		return nil, ErrCodeExpired
	}

	cost := req.Kind.PointsCost()
	if reseller.PointsBalance < cost {
		return nil, ErrInsufficientPoints
	}

	username, err := s.resolveUsername(req.Username)
	if err != nil {
		return nil, err
	}

	var mediaLink *string
	if req.MediaLink != "" {
		mediaLink = &req.MediaLink
	}

	result, err := s.redemptions.Redeem(db.RedeemParams{
		ResellerID:     req.ResellerID,
		Code:           req.Code,
		Username:       username,
		MediaLink:      mediaLink,
		DurationMonths: req.Kind.DurationMonths(),
		MaxDevices:     1,
		IsLifetime:     req.Kind == entitlement.KindLifetime,
		PointsCost:     cost,
		ExpiresAt:      req.Kind.ExpiryFrom(now),
		Now:            now,
	})
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return nil, ErrCodeNotFound
		case errors.Is(err, db.ErrCodeUsed):
			return nil, ErrCodeUsed
		case errors.Is(err, db.ErrCodeExpired):
			return nil, ErrCodeExpired
		case errors.Is(err, db.ErrInsufficientPoints):
			return nil, ErrInsufficientPoints
		case errors.Is(err, db.ErrDuplicate):
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("redeeming code: %w", err)
	}

	slog.Info("activation code redeemed",
		"code", req.Code,
		"reseller_id", req.ResellerID,
		"user_id", result.User.ID,
		"device_uid", result.Device.DeviceUID,
		"points_deducted", cost,
	)

	return result, nil
}

// resolveUsername uses the requested name when free, otherwise generates a
// unique SERVO-prefixed one.
func (s *Service) resolveUsername(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		available, err := s.users.IsUsernameAvailable(requested)
		if err != nil {
			return "", fmt.Errorf("checking username: %w", err)
		}
		if available {
			return requested, nil
		}
	}

	for {
		candidate := "SERVO-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		available, err := s.users.IsUsernameAvailable(candidate)
		if err != nil {
			return "", fmt.Errorf("checking generated username: %w", err)
		}
		if available {
			return candidate, nil
		}
	}
}

// GenerateDeviceID is the fallback identifier for clients that cannot expose
// a hardware serial.
func GenerateDeviceID() string {
	return "DEV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
