package models

import "time"

// PendingCode is a short-lived device activation code. It is created when an
// anonymous device registers and is either consumed exactly once by a reseller
// redemption or expires unredeemed.
type PendingCode struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	DeviceID   string     `json:"deviceId"`
	DeviceType string     `json:"deviceType"`
	Username   *string    `json:"username,omitempty"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ResellerID *string    `json:"resellerId,omitempty"`
	UserID     *string    `json:"userId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (c *PendingCode) IsUsed() bool {
	return c.UsedAt != nil
}

// Entitlement is a redeemed subscription record. Once activated, ExpiresAt is
// authoritative for every access decision; lifetime subscriptions carry a
// far-future expiry so that comparisons stay total.
type Entitlement struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	ResellerID     string     `json:"resellerId"`
	AssignedUserID *string    `json:"assignedUserId,omitempty"`
	DurationMonths int        `json:"durationMonths"`
	MaxDevices     int        `json:"maxDevices"`
	IsLifetime     bool       `json:"isLifetime"`
	ActivatedAt    *time.Time `json:"activatedAt,omitempty"`
	ExpiresAt      *time.Time `json:"expirationDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
