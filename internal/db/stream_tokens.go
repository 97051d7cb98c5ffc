package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

// StreamTokenRepository stores stream tokens as rows rather than in-process
// state so that any worker can resolve a token minted by another.
type StreamTokenRepository struct {
	db *DB
}

func NewStreamTokenRepository(db *DB) *StreamTokenRepository {
	return &StreamTokenRepository{db: db}
}

// Replace mints the device's stream token, displacing any previous one. The
// device_id unique constraint keeps the 1:1 device-token invariant.
func (r *StreamTokenRepository) Replace(deviceID, tokenHash string, expiresAt time.Time) (*models.StreamToken, error) {
	id, err := generateID("stk")
	if err != nil {
		return nil, fmt.Errorf("generating stream token ID: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting stream token transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM stream_tokens WHERE device_id = ?`, deviceID); err != nil {
		return nil, fmt.Errorf("displacing previous stream token: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO stream_tokens (id, device_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, deviceID, tokenHash, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stream token: %w", err)
	}

	return &models.StreamToken{
		ID:        id,
		DeviceID:  deviceID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}, nil
}

// FindValidByHash resolves an unexpired token by its hash. Expired rows are
// treated as absent; the cleanup service removes them eventually.
func (r *StreamTokenRepository) FindValidByHash(tokenHash string, now time.Time) (*models.StreamToken, error) {
	var t models.StreamToken

	err := r.db.QueryRow(
		`SELECT id, device_id, token_hash, expires_at, created_at FROM stream_tokens
		 WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, now.UTC(),
	).Scan(&t.ID, &t.DeviceID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stream token: %w", err)
	}

	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

func (r *StreamTokenRepository) RevokeForDevice(deviceID string) error {
	_, err := r.db.Exec(`DELETE FROM stream_tokens WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("revoking stream token: %w", err)
	}
	return nil
}

func (r *StreamTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM stream_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired stream tokens: %w", err)
	}

	return result.RowsAffected()
}
