package db

import (
	"fmt"
	"time"
)

type AuditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type AuditRecord struct {
	ActorType    string
	ActorID      string
	Action       string
	Description  string
	ResourceType string
	ResourceID   string
	IPAddress    string
}

func (r *AuditRepository) Insert(rec AuditRecord) error {
	id, err := generateID("aud")
	if err != nil {
		return fmt.Errorf("generating audit ID: %w", err)
	}

	var resourceType, resourceID, ipAddress, description any
	if rec.ResourceType != "" {
		resourceType = rec.ResourceType
	}
	if rec.ResourceID != "" {
		resourceID = rec.ResourceID
	}
	if rec.IPAddress != "" {
		ipAddress = rec.IPAddress
	}
	if rec.Description != "" {
		description = rec.Description
	}

	_, err = r.db.Exec(
		`INSERT INTO audit_log (id, actor_type, actor_id, action, description, resource_type, resource_id, ip_address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.ActorType, rec.ActorID, rec.Action, description, resourceType, resourceID, ipAddress, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	return nil
}
