package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type PlaylistSourceRepository struct {
	db *DB
}

func NewPlaylistSourceRepository(db *DB) *PlaylistSourceRepository {
	return &PlaylistSourceRepository{db: db}
}

func (r *PlaylistSourceRepository) Create(userID, name, mediaLink string) (*models.PlaylistSource, error) {
	id, err := generateID("pls")
	if err != nil {
		return nil, fmt.Errorf("generating playlist source ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO playlist_sources (id, user_id, name, media_link, is_active, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		id, userID, name, mediaLink, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating playlist source: %w", err)
	}

	return &models.PlaylistSource{
		ID:        id,
		UserID:    userID,
		Name:      name,
		MediaLink: mediaLink,
		IsActive:  true,
		CreatedAt: now,
	}, nil
}

func (r *PlaylistSourceRepository) FindByUser(userID string) ([]*models.PlaylistSource, error) {
	return r.findMany(
		`SELECT id, user_id, name, media_link, is_active, created_at FROM playlist_sources WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
}

// FindActiveByUser returns only the sources that participate in aggregation.
func (r *PlaylistSourceRepository) FindActiveByUser(userID string) ([]*models.PlaylistSource, error) {
	return r.findMany(
		`SELECT id, user_id, name, media_link, is_active, created_at
		 FROM playlist_sources WHERE user_id = ? AND is_active = 1 ORDER BY created_at`,
		userID,
	)
}

func (r *PlaylistSourceRepository) FindByID(id string) (*models.PlaylistSource, error) {
	var s models.PlaylistSource

	err := r.db.QueryRow(
		`SELECT id, user_id, name, media_link, is_active, created_at FROM playlist_sources WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &s.Name, &s.MediaLink, &s.IsActive, &s.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying playlist source: %w", err)
	}

	s.CreatedAt = s.CreatedAt.UTC()

	return &s, nil
}

func (r *PlaylistSourceRepository) SetActive(id string, active bool) error {
	result, err := r.db.Exec(`UPDATE playlist_sources SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("updating playlist source: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *PlaylistSourceRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM playlist_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting playlist source: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *PlaylistSourceRepository) findMany(query string, args ...any) ([]*models.PlaylistSource, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying playlist sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.PlaylistSource
	for rows.Next() {
		var s models.PlaylistSource
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.MediaLink, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist source: %w", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		sources = append(sources, &s)
	}

	return sources, rows.Err()
}
