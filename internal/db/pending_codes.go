package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type PendingCodeRepository struct {
	db *DB
}

func NewPendingCodeRepository(db *DB) *PendingCodeRepository {
	return &PendingCodeRepository{db: db}
}

const pendingCodeColumns = `id, code, device_id, device_type, username, used_at, expires_at, reseller_id, user_id, created_at`

// FindLiveByDevice returns the unused, unexpired code for a device identifier,
// or ErrNotFound.
func (r *PendingCodeRepository) FindLiveByDevice(deviceID string, now time.Time) (*models.PendingCode, error) {
	return r.findOne(
		`SELECT `+pendingCodeColumns+` FROM pending_codes
		 WHERE device_id = ? AND used_at IS NULL AND expires_at > ?`,
		deviceID, now.UTC(),
	)
}

func (r *PendingCodeRepository) FindByCode(code string) (*models.PendingCode, error) {
	return r.findOne(
		`SELECT `+pendingCodeColumns+` FROM pending_codes
		 WHERE code = ? ORDER BY created_at DESC LIMIT 1`,
		code,
	)
}

// Insert persists a fresh pending code. A partial unique index on
// (device_id) WHERE used_at IS NULL serializes concurrent issuance: the loser
// of a race gets ErrDuplicate and re-reads the winner's row. Expired unused
// rows for the device are cleared first so reissuance after expiry can
// succeed under the same index.
func (r *PendingCodeRepository) Insert(code, deviceID, deviceType string, expiresAt time.Time) (*models.PendingCode, error) {
	id, err := generateID("pac")
	if err != nil {
		return nil, fmt.Errorf("generating pending code ID: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting issuance transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM pending_codes WHERE device_id = ? AND used_at IS NULL AND expires_at <= ?`,
		deviceID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("clearing expired codes: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO pending_codes (id, code, device_id, device_type, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, code, deviceID, deviceType, expiresAt.UTC(), now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating pending code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing issuance: %w", err)
	}

	return &models.PendingCode{
		ID:         id,
		Code:       code,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		ExpiresAt:  expiresAt.UTC(),
		CreatedAt:  now,
	}, nil
}

// FindConsumedByDevice returns the redeemed activation record that bound this
// device, or ErrNotFound if the device was never activated.
func (r *PendingCodeRepository) FindConsumedByDevice(deviceID string) (*models.PendingCode, error) {
	return r.findOne(
		`SELECT `+pendingCodeColumns+` FROM pending_codes
		 WHERE device_id = ? AND used_at IS NOT NULL ORDER BY used_at DESC LIMIT 1`,
		deviceID,
	)
}

func (r *PendingCodeRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM pending_codes WHERE used_at IS NULL AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired pending codes: %w", err)
	}

	return result.RowsAffected()
}

type pendingCodeScanner interface {
	Scan(dest ...any) error
}

func scanPendingCode(row pendingCodeScanner) (*models.PendingCode, error) {
	var c models.PendingCode
	var username, resellerID, userID sql.NullString
	var usedAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.DeviceID,
		&c.DeviceType,
		&username,
		&usedAt,
		&c.ExpiresAt,
		&resellerID,
		&userID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning pending code: %w", err)
	}

	c.Username = nullStringToPtr(username)
	c.ResellerID = nullStringToPtr(resellerID)
	c.UserID = nullStringToPtr(userID)
	c.UsedAt = nullTimeToPtr(usedAt)
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()

	return &c, nil
}

func (r *PendingCodeRepository) findOne(query string, args ...any) (*models.PendingCode, error) {
	code, err := scanPendingCode(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return code, nil
}
