package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

// Redemption errors map onto the precondition ladder of code redemption.
// They are returned from inside the transaction so the caller can translate
// them without inspecting SQL state.
var (
	ErrCodeUsed           = errors.New("activation code already used")
	ErrCodeExpired        = errors.New("activation code expired")
	ErrInsufficientPoints = errors.New("insufficient points balance")
)

type RedemptionRepository struct {
	db *DB
}

func NewRedemptionRepository(db *DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// RedeemParams carries everything the redemption transaction needs. All
// values are validated by the caller; the transaction enforces only the
// invariants that must hold atomically (single-use code, non-negative
// balance).
type RedeemParams struct {
	ResellerID     string
	Code           string
	Username       string
	MediaLink      *string
	DurationMonths int
	MaxDevices     int
	IsLifetime     bool
	PointsCost     int
	ExpiresAt      time.Time
	Now            time.Time
}

type RedeemResult struct {
	User            *models.User
	Entitlement     *models.Entitlement
	Device          *models.Device
	RemainingPoints int
}

// Redeem performs the whole redemption in one SQLite transaction: consume the
// pending code (CAS on used_at IS NULL), create the user, entitlement and
// device, debit the reseller. Either everything lands or nothing does; a
// failed redemption leaves the code unused and the balance untouched.
func (r *RedemptionRepository) Redeem(p RedeemParams) (*RedeemResult, error) {
	userID, err := generateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	entitlementID, err := generateID("ent")
	if err != nil {
		return nil, fmt.Errorf("generating entitlement ID: %w", err)
	}
	deviceID, err := generateID("dev")
	if err != nil {
		return nil, fmt.Errorf("generating device ID: %w", err)
	}

	now := p.Now.UTC()
	expiresAt := p.ExpiresAt.UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting redemption transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-read the pending code inside the transaction. The precondition
	// ladder ran before, but only this read is authoritative under
	// concurrency.
	pending, err := scanPendingCode(tx.QueryRow(
		`SELECT `+pendingCodeColumns+` FROM pending_codes WHERE code = ? ORDER BY created_at DESC LIMIT 1`,
		p.Code,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if pending.IsUsed() {
		return nil, ErrCodeUsed
	}
	if !pending.ExpiresAt.After(now) {
		return nil, ErrCodeExpired
	}

	_, err = tx.Exec(
		`INSERT INTO users (id, username, reseller_id, created_at) VALUES (?, ?, ?, ?)`,
		userID, p.Username, p.ResellerID, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO entitlements (id, code, reseller_id, assigned_user_id, duration_months, max_devices,
		 is_lifetime, activated_at, expiration_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entitlementID, p.Code, p.ResellerID, userID, p.DurationMonths, p.MaxDevices,
		p.IsLifetime, now, expiresAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating entitlement: %w", err)
	}

	var mediaLinkVal any
	if p.MediaLink != nil {
		mediaLinkVal = *p.MediaLink
	}
	_, err = tx.Exec(
		`INSERT INTO devices (id, user_id, device_uid, device_type, is_active, first_login_at, media_link, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		deviceID, userID, pending.DeviceID, pending.DeviceType, now, mediaLinkVal, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			// The device identifier was already bound by an earlier
			// redemption of another code.
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating device: %w", err)
	}

	// Single-use guard: only one transaction can flip used_at.
	result, err := tx.Exec(
		`UPDATE pending_codes SET used_at = ?, reseller_id = ?, user_id = ?, username = ?
		 WHERE id = ? AND used_at IS NULL`,
		now, p.ResellerID, userID, p.Username, pending.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming pending code: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, ErrCodeUsed
	}

	// Debit guarded by the current balance; a concurrent debit that drained
	// the balance makes this a no-op and the transaction rolls back.
	result, err = tx.Exec(
		`UPDATE resellers SET points_balance = points_balance - ?, total_points_charged = total_points_charged + ?, updated_at = ?
		 WHERE id = ? AND points_balance >= ?`,
		p.PointsCost, p.PointsCost, now, p.ResellerID, p.PointsCost,
	)
	if err != nil {
		return nil, fmt.Errorf("debiting reseller: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, ErrInsufficientPoints
	}

	var remaining int
	if err := tx.QueryRow(`SELECT points_balance FROM resellers WHERE id = ?`, p.ResellerID).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("reading remaining balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}

	user := &models.User{
		ID:         userID,
		Username:   p.Username,
		ResellerID: p.ResellerID,
		CreatedAt:  now,
	}
	entitlement := &models.Entitlement{
		ID:             entitlementID,
		Code:           p.Code,
		ResellerID:     p.ResellerID,
		AssignedUserID: &userID,
		DurationMonths: p.DurationMonths,
		MaxDevices:     p.MaxDevices,
		IsLifetime:     p.IsLifetime,
		ActivatedAt:    &now,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
	}
	device := &models.Device{
		ID:           deviceID,
		UserID:       &userID,
		DeviceUID:    pending.DeviceID,
		DeviceType:   pending.DeviceType,
		IsActive:     true,
		FirstLoginAt: &now,
		MediaLink:    p.MediaLink,
		CreatedAt:    now,
	}

	return &RedeemResult{
		User:            user,
		Entitlement:     entitlement,
		Device:          device,
		RemainingPoints: remaining,
	}, nil
}
