package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servotv/internal/models"
)

type TicketRepository struct {
	db *DB
}

func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, ticket_number, reseller_id, subject, description, status, priority, assigned_to, resolved_at, created_at`

func (r *TicketRepository) Create(ticketNumber, resellerID, subject, description, priority string) (*models.SupportTicket, error) {
	id, err := generateID("tkt")
	if err != nil {
		return nil, fmt.Errorf("generating ticket ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO support_tickets (id, ticket_number, reseller_id, subject, description, status, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, 'open', ?, ?)`,
		id, ticketNumber, resellerID, subject, description, priority, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	return &models.SupportTicket{
		ID:           id,
		TicketNumber: ticketNumber,
		ResellerID:   resellerID,
		Subject:      subject,
		Description:  description,
		Status:       models.TicketStatusOpen,
		Priority:     priority,
		CreatedAt:    now,
	}, nil
}

func (r *TicketRepository) FindByID(id string) (*models.SupportTicket, error) {
	return r.findOne(`SELECT `+ticketColumns+` FROM support_tickets WHERE id = ?`, id)
}

func (r *TicketRepository) FindByReseller(resellerID string) ([]*models.SupportTicket, error) {
	return r.findMany(`SELECT `+ticketColumns+` FROM support_tickets WHERE reseller_id = ? ORDER BY created_at DESC`, resellerID)
}

func (r *TicketRepository) FindAll() ([]*models.SupportTicket, error) {
	return r.findMany(`SELECT ` + ticketColumns + ` FROM support_tickets ORDER BY created_at DESC`)
}

func (r *TicketRepository) SetStatus(id, status string) error {
	var resolvedAt any
	if status == models.TicketStatusClosed {
		resolvedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(
		`UPDATE support_tickets SET status = ?, resolved_at = ? WHERE id = ?`,
		status, resolvedAt, id,
	)
	if err != nil {
		return fmt.Errorf("updating ticket status: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *TicketRepository) Assign(id, adminID string) error {
	result, err := r.db.Exec(
		`UPDATE support_tickets SET assigned_to = ?, status = ? WHERE id = ?`,
		adminID, models.TicketStatusInProgress, id,
	)
	if err != nil {
		return fmt.Errorf("assigning ticket: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *TicketRepository) AddMessage(ticketID, senderType, senderID, message string, isInternal bool) (*models.TicketMessage, error) {
	id, err := generateID("tms")
	if err != nil {
		return nil, fmt.Errorf("generating ticket message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO ticket_messages (id, ticket_id, sender_type, sender_id, message, is_internal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ticketID, senderType, senderID, message, isInternal, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticket message: %w", err)
	}

	return &models.TicketMessage{
		ID:         id,
		TicketID:   ticketID,
		SenderType: senderType,
		SenderID:   senderID,
		Message:    message,
		IsInternal: isInternal,
		CreatedAt:  now,
	}, nil
}

// Messages returns a ticket's thread oldest-first. Internal notes are only
// included when the caller is staff.
func (r *TicketRepository) Messages(ticketID string, includeInternal bool) ([]*models.TicketMessage, error) {
	query := `SELECT id, ticket_id, sender_type, sender_id, message, is_internal, created_at
		 FROM ticket_messages WHERE ticket_id = ?`
	if !includeInternal {
		query += ` AND is_internal = 0`
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("querying ticket messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.TicketMessage
	for rows.Next() {
		var m models.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderType, &m.SenderID, &m.Message, &m.IsInternal, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}

func (r *TicketRepository) findOne(query string, args ...any) (*models.SupportTicket, error) {
	ticket, err := scanTicket(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *TicketRepository) findMany(query string, args ...any) ([]*models.SupportTicket, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.SupportTicket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}

	return tickets, rows.Err()
}

type ticketScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row ticketScanner) (*models.SupportTicket, error) {
	var t models.SupportTicket
	var assignedTo sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.TicketNumber,
		&t.ResellerID,
		&t.Subject,
		&t.Description,
		&t.Status,
		&t.Priority,
		&assignedTo,
		&resolvedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning ticket: %w", err)
	}

	t.AssignedTo = nullStringToPtr(assignedTo)
	t.ResolvedAt = nullTimeToPtr(resolvedAt)
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}
