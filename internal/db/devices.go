package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type DeviceRepository struct {
	db *DB
}

func NewDeviceRepository(db *DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, device_uid, device_name, device_type, is_active, is_deleted,
	first_login_at, last_login_at, last_ip, media_link, disabled_at, disabled_reason, created_at`

// FindActiveByUID resolves a device by its stable hardware identifier,
// excluding soft-deleted and disabled devices.
func (r *DeviceRepository) FindActiveByUID(deviceUID string) (*models.Device, error) {
	return r.findOne(`SELECT `+deviceColumns+` FROM devices WHERE device_uid = ? AND is_active = 1 AND is_deleted = 0`, deviceUID)
}

func (r *DeviceRepository) FindByUID(deviceUID string) (*models.Device, error) {
	return r.findOne(`SELECT `+deviceColumns+` FROM devices WHERE device_uid = ? AND is_deleted = 0`, deviceUID)
}

func (r *DeviceRepository) FindByID(id string) (*models.Device, error) {
	return r.findOne(`SELECT `+deviceColumns+` FROM devices WHERE id = ? AND is_deleted = 0`, id)
}

func (r *DeviceRepository) FindByUser(userID string) ([]*models.Device, error) {
	rows, err := r.db.Query(`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? AND is_deleted = 0 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}

func (r *DeviceRepository) CountActiveByUser(userID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM devices WHERE user_id = ? AND is_active = 1 AND is_deleted = 0`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active devices: %w", err)
	}
	return count, nil
}

func (r *DeviceRepository) RecordLogin(id string, at time.Time, ip string) error {
	result, err := r.db.Exec(
		`UPDATE devices SET last_login_at = ?, last_ip = ?,
		 first_login_at = COALESCE(first_login_at, ?)
		 WHERE id = ?`,
		at.UTC(), ip, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording device login: %w", err)
	}
	return checkRowsAffected(result)
}

// Disable deactivates a device without deleting it. The reason is kept for
// support diagnostics.
func (r *DeviceRepository) Disable(id, reason string) error {
	result, err := r.db.Exec(
		`UPDATE devices SET is_active = 0, disabled_at = ?, disabled_reason = ? WHERE id = ? AND is_active = 1`,
		time.Now().UTC(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("disabling device: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *DeviceRepository) Enable(id string) error {
	result, err := r.db.Exec(
		`UPDATE devices SET is_active = 1, disabled_at = NULL, disabled_reason = NULL WHERE id = ? AND is_deleted = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("enabling device: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *DeviceRepository) SoftDelete(id string) error {
	result, err := r.db.Exec(
		`UPDATE devices SET is_deleted = 1, is_active = 0 WHERE id = ? AND is_deleted = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkRowsAffected(result)
}

type deviceScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row deviceScanner) (*models.Device, error) {
	var d models.Device
	var userID, deviceName, lastIP, mediaLink, disabledReason sql.NullString
	var firstLoginAt, lastLoginAt, disabledAt sql.NullTime

	err := row.Scan(
		&d.ID,
		&userID,
		&d.DeviceUID,
		&deviceName,
		&d.DeviceType,
		&d.IsActive,
		&d.IsDeleted,
		&firstLoginAt,
		&lastLoginAt,
		&lastIP,
		&mediaLink,
		&disabledAt,
		&disabledReason,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.UserID = nullStringToPtr(userID)
	d.DeviceName = nullStringToPtr(deviceName)
	d.LastIP = nullStringToPtr(lastIP)
	d.MediaLink = nullStringToPtr(mediaLink)
	d.DisabledReason = nullStringToPtr(disabledReason)
	d.FirstLoginAt = nullTimeToPtr(firstLoginAt)
	d.LastLoginAt = nullTimeToPtr(lastLoginAt)
	d.DisabledAt = nullTimeToPtr(disabledAt)
	d.CreatedAt = d.CreatedAt.UTC()

	return &d, nil
}

func (r *DeviceRepository) findOne(query string, args ...any) (*models.Device, error) {
	device, err := scanDevice(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return device, nil
}
