package models

import "time"

// StreamToken authorizes playlist retrieval for one device. At most one live
// token exists per device; minting replaces the previous one.
type StreamToken struct {
	ID        string
	DeviceID  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PlayToken authorizes the handoff of one specific upstream URL. The payload
// is captured server-side at mint time so that the raw URL is never round-
// tripped through the client between request and resolution.
type PlayToken struct {
	ID          string
	DeviceID    string
	UserID      string
	TokenHash   string
	StreamURL   string
	ContentID   string
	ContentName string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// RefreshToken backs panel (admin/reseller) sessions.
type RefreshToken struct {
	ID          string
	SubjectType string
	SubjectID   string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RevokedAt   *time.Time
}
