package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type ResellerRepository struct {
	db *DB
}

func NewResellerRepository(db *DB) *ResellerRepository {
	return &ResellerRepository{db: db}
}

func (r *ResellerRepository) Create(name, country, email, passwordHash string) (*models.Reseller, error) {
	id, err := generateID("rsl")
	if err != nil {
		return nil, fmt.Errorf("generating reseller ID: %w", err)
	}
	now := time.Now().UTC()

	var countryVal any
	if country != "" {
		countryVal = country
	}

	_, err = r.db.Exec(
		`INSERT INTO resellers (id, name, country, email, password_hash, points_balance, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 1, ?)`,
		id, name, countryVal, email, passwordHash, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating reseller: %w", err)
	}

	reseller := &models.Reseller{
		ID:            id,
		Name:          name,
		Email:         email,
		PasswordHash:  passwordHash,
		PointsBalance: 0,
		IsActive:      true,
		CreatedAt:     now,
	}
	if country != "" {
		reseller.Country = &country
	}
	return reseller, nil
}

func (r *ResellerRepository) FindByID(id string) (*models.Reseller, error) {
	return r.findOne(`SELECT id, name, country, email, password_hash, points_balance, is_active,
		total_amount_charged, total_points_charged, created_at, updated_at
		FROM resellers WHERE id = ?`, id)
}

func (r *ResellerRepository) FindByEmail(email string) (*models.Reseller, error) {
	return r.findOne(`SELECT id, name, country, email, password_hash, points_balance, is_active,
		total_amount_charged, total_points_charged, created_at, updated_at
		FROM resellers WHERE email = ?`, email)
}

func (r *ResellerRepository) FindAll() ([]*models.Reseller, error) {
	rows, err := r.db.Query(
		`SELECT id, name, country, email, password_hash, points_balance, is_active,
		 total_amount_charged, total_points_charged, created_at, updated_at
		 FROM resellers ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resellers: %w", err)
	}
	defer rows.Close()

	var resellers []*models.Reseller
	for rows.Next() {
		reseller, err := scanReseller(rows)
		if err != nil {
			return nil, err
		}
		resellers = append(resellers, reseller)
	}

	return resellers, rows.Err()
}

// SetActive soft-enables or soft-disables a reseller. Resellers are never
// hard-deleted while they own users.
func (r *ResellerRepository) SetActive(id string, active bool) error {
	result, err := r.db.Exec(
		`UPDATE resellers SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating reseller active flag: %w", err)
	}
	return checkRowsAffected(result)
}

// CreditPoints applies a top-up: the balance update and the top-up record are
// written in one transaction so the ledger can never drift from the balance.
func (r *ResellerRepository) CreditPoints(resellerID string, points int, amountUSD float64, invoiceNumber string) (*models.TopUp, error) {
	if points <= 0 {
		return nil, fmt.Errorf("top-up points must be positive")
	}

	id, err := generateID("top")
	if err != nil {
		return nil, fmt.Errorf("generating top-up ID: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting top-up transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE resellers SET points_balance = points_balance + ?, total_amount_charged = total_amount_charged + ?, updated_at = ?
		 WHERE id = ?`,
		points, amountUSD, now, resellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("crediting reseller balance: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`INSERT INTO reseller_topups (id, reseller_id, points, amount_usd, invoice_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, resellerID, points, amountUSD, invoiceNumber, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("recording top-up: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing top-up: %w", err)
	}

	return &models.TopUp{
		ID:            id,
		ResellerID:    resellerID,
		Points:        points,
		AmountUSD:     amountUSD,
		InvoiceNumber: invoiceNumber,
		CreatedAt:     now,
	}, nil
}

func (r *ResellerRepository) TopUpHistory(resellerID string) ([]*models.TopUp, error) {
	rows, err := r.db.Query(
		`SELECT id, reseller_id, points, amount_usd, invoice_number, created_at
		 FROM reseller_topups WHERE reseller_id = ? ORDER BY created_at DESC`,
		resellerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top-ups: %w", err)
	}
	defer rows.Close()

	var topups []*models.TopUp
	for rows.Next() {
		var t models.TopUp
		if err := rows.Scan(&t.ID, &t.ResellerID, &t.Points, &t.AmountUSD, &t.InvoiceNumber, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning top-up: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		topups = append(topups, &t)
	}

	return topups, rows.Err()
}

type resellerScanner interface {
	Scan(dest ...any) error
}

func scanReseller(row resellerScanner) (*models.Reseller, error) {
	var reseller models.Reseller
	var country sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&reseller.ID,
		&reseller.Name,
		&country,
		&reseller.Email,
		&reseller.PasswordHash,
		&reseller.PointsBalance,
		&reseller.IsActive,
		&reseller.TotalAmountCharged,
		&reseller.TotalPointsCharged,
		&reseller.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning reseller: %w", err)
	}

	reseller.Country = nullStringToPtr(country)
	reseller.UpdatedAt = nullTimeToPtr(updatedAt)
	reseller.CreatedAt = reseller.CreatedAt.UTC()

	return &reseller, nil
}

func (r *ResellerRepository) findOne(query string, args ...any) (*models.Reseller, error) {
	row := r.db.QueryRow(query, args...)

	reseller, err := scanReseller(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return reseller, nil
}
