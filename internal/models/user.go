package models

import "time"

// User is a lightweight end-customer identity. Users have no credentials of
// their own; they exist only as the owner of devices and an entitlement, and
// are created exclusively by code redemption.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	ResellerID string     `json:"resellerId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

type Device struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"userId,omitempty"`
	DeviceUID      string     `json:"deviceUid"`
	DeviceName     *string    `json:"deviceName,omitempty"`
	DeviceType     string     `json:"deviceType"`
	IsActive       bool       `json:"isActive"`
	IsDeleted      bool       `json:"-"`
	FirstLoginAt   *time.Time `json:"firstLoginAt,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	LastIP         *string    `json:"-"`
	MediaLink      *string    `json:"mediaLink,omitempty"`
	DisabledAt     *time.Time `json:"disabledAt,omitempty"`
	DisabledReason *string    `json:"disabledReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// PlaylistSource is one external M3U upstream belonging to a user. The merged
// playlist served to a device is the union of the user's active sources.
type PlaylistSource struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	MediaLink string    `json:"mediaLink"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
