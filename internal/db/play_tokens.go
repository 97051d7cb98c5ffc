package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type PlayTokenRepository struct {
	db *DB
}

func NewPlayTokenRepository(db *DB) *PlayTokenRepository {
	return &PlayTokenRepository{db: db}
}

func (r *PlayTokenRepository) Create(deviceID, userID, tokenHash, streamURL, contentID, contentName string, expiresAt time.Time) (*models.PlayToken, error) {
	id, err := generateID("plt")
	if err != nil {
		return nil, fmt.Errorf("generating play token ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO play_tokens (id, device_id, user_id, token_hash, stream_url, content_id, content_name, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, deviceID, userID, tokenHash, streamURL, contentID, contentName, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating play token: %w", err)
	}

	return &models.PlayToken{
		ID:          id,
		DeviceID:    deviceID,
		UserID:      userID,
		TokenHash:   tokenHash,
		StreamURL:   streamURL,
		ContentID:   contentID,
		ContentName: contentName,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now,
	}, nil
}

func (r *PlayTokenRepository) FindValidByHash(tokenHash string, now time.Time) (*models.PlayToken, error) {
	var t models.PlayToken

	err := r.db.QueryRow(
		`SELECT id, device_id, user_id, token_hash, stream_url, content_id, content_name, expires_at, created_at
		 FROM play_tokens WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, now.UTC(),
	).Scan(&t.ID, &t.DeviceID, &t.UserID, &t.TokenHash, &t.StreamURL, &t.ContentID, &t.ContentName, &t.ExpiresAt, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying play token: %w", err)
	}

	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

func (r *PlayTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM play_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired play tokens: %w", err)
	}

	return result.RowsAffected()
}
