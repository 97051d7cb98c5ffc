package db

import (
	"database/sql"
	"errors"
	"fmt"

	"servotv/internal/models"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	return r.findOne(`SELECT id, username, reseller_id, created_at, updated_at FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByUsername(username string) (*models.User, error) {
	return r.findOne(`SELECT id, username, reseller_id, created_at, updated_at FROM users WHERE username = ?`, username)
}

func (r *UserRepository) FindByReseller(resellerID string) ([]*models.User, error) {
	rows, err := r.db.Query(
		`SELECT id, username, reseller_id, created_at, updated_at FROM users WHERE reseller_id = ? ORDER BY created_at DESC`,
		resellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		var updatedAt sql.NullTime

		if err := rows.Scan(&u.ID, &u.Username, &u.ResellerID, &u.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}

		u.UpdatedAt = nullTimeToPtr(updatedAt)
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, &u)
	}

	return users, rows.Err()
}

func (r *UserRepository) IsUsernameAvailable(username string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking username availability: %w", err)
	}
	return count == 0, nil
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var updatedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.ResellerID,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.UpdatedAt = nullTimeToPtr(updatedAt)
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}
