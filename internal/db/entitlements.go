package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type EntitlementRepository struct {
	db *DB
}

func NewEntitlementRepository(db *DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const entitlementColumns = `id, code, reseller_id, assigned_user_id, duration_months, max_devices,
	is_lifetime, activated_at, expiration_date, created_at`

// FindActiveForUser returns the user's most recently activated entitlement.
// The schema permits several rows per user; ordering by activated_at makes
// the "latest wins" policy explicit instead of depending on storage order.
func (r *EntitlementRepository) FindActiveForUser(userID string) (*models.Entitlement, error) {
	return r.findOne(
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE assigned_user_id = ? ORDER BY activated_at DESC LIMIT 1`,
		userID,
	)
}

// FindByCode returns the most recent entitlement redeemed under the code.
// Codes recycle across history, so older rows may share it.
func (r *EntitlementRepository) FindByCode(code string) (*models.Entitlement, error) {
	return r.findOne(
		`SELECT `+entitlementColumns+` FROM entitlements WHERE code = ?
		 ORDER BY created_at DESC LIMIT 1`,
		code,
	)
}

func (r *EntitlementRepository) FindByReseller(resellerID string) ([]*models.Entitlement, error) {
	rows, err := r.db.Query(
		`SELECT `+entitlementColumns+` FROM entitlements WHERE reseller_id = ? ORDER BY created_at DESC`,
		resellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entitlements: %w", err)
	}
	defer rows.Close()

	var entitlements []*models.Entitlement
	for rows.Next() {
		entitlement, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		entitlements = append(entitlements, entitlement)
	}

	return entitlements, rows.Err()
}

// ForceExpire sets the entitlement's expiry to now and, in the same
// transaction, deactivates the assigned user's devices and drops their
// stream tokens. Every stream stage rechecks the entitlement anyway, but
// the cascade cuts off already-issued tokens immediately.
func (r *EntitlementRepository) ForceExpire(entitlementID string) error {
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting force-expire transaction: %w", err)
	}
	defer tx.Rollback()

	var userID sql.NullString
	err = tx.QueryRow(
		`SELECT assigned_user_id FROM entitlements WHERE id = ?`, entitlementID,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading entitlement: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE entitlements SET expiration_date = ? WHERE id = ?`,
		now, entitlementID,
	)
	if err != nil {
		return fmt.Errorf("expiring entitlement: %w", err)
	}

	if userID.Valid {
		_, err = tx.Exec(
			`UPDATE devices SET is_active = 0, disabled_at = ?, disabled_reason = ?
			 WHERE user_id = ? AND is_active = 1`,
			now, "subscription force-expired", userID.String,
		)
		if err != nil {
			return fmt.Errorf("deactivating devices: %w", err)
		}

		_, err = tx.Exec(
			`DELETE FROM stream_tokens
			 WHERE device_id IN (SELECT id FROM devices WHERE user_id = ?)`,
			userID.String,
		)
		if err != nil {
			return fmt.Errorf("revoking stream tokens: %w", err)
		}
	}

	return tx.Commit()
}

type entitlementScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row entitlementScanner) (*models.Entitlement, error) {
	var e models.Entitlement
	var assignedUserID sql.NullString
	var activatedAt, expiresAt sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.Code,
		&e.ResellerID,
		&assignedUserID,
		&e.DurationMonths,
		&e.MaxDevices,
		&e.IsLifetime,
		&activatedAt,
		&expiresAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning entitlement: %w", err)
	}

	e.AssignedUserID = nullStringToPtr(assignedUserID)
	e.ActivatedAt = nullTimeToPtr(activatedAt)
	e.ExpiresAt = nullTimeToPtr(expiresAt)
	e.CreatedAt = e.CreatedAt.UTC()

	return &e, nil
}

func (r *EntitlementRepository) findOne(query string, args ...any) (*models.Entitlement, error) {
	entitlement, err := scanEntitlement(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entitlement, nil
}
