package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type AdminRepository struct {
	db *DB
}

func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Create(username, email, passwordHash, role string) (*models.Admin, error) {
	id, err := generateID("adm")
	if err != nil {
		return nil, fmt.Errorf("generating admin ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO admins (id, username, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, email, passwordHash, role, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	return &models.Admin{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

func (r *AdminRepository) FindByID(id string) (*models.Admin, error) {
	return r.findOne(`SELECT id, username, email, password_hash, role, created_at FROM admins WHERE id = ?`, id)
}

func (r *AdminRepository) FindByEmail(email string) (*models.Admin, error) {
	return r.findOne(`SELECT id, username, email, password_hash, role, created_at FROM admins WHERE email = ?`, email)
}

func (r *AdminRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return count, nil
}

func (r *AdminRepository) findOne(query string, args ...any) (*models.Admin, error) {
	var admin models.Admin

	err := r.db.QueryRow(query, args...).Scan(
		&admin.ID,
		&admin.Username,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Role,
		&admin.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin: %w", err)
	}

	admin.CreatedAt = admin.CreatedAt.UTC()

	return &admin, nil
}
