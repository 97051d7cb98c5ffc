package models

import "time"

type Reseller struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Country            *string    `json:"country,omitempty"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	PointsBalance      int        `json:"pointsBalance"`
	IsActive           bool       `json:"isActive"`
	TotalAmountCharged float64    `json:"totalAmountCharged"`
	TotalPointsCharged int        `json:"totalPointsCharged"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

type Admin struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type TopUp struct {
	ID            string    `json:"id"`
	ResellerID    string    `json:"resellerId"`
	Points        int       `json:"points"`
	AmountUSD     float64   `json:"amountUsd"`
	InvoiceNumber string    `json:"invoiceNumber"`
	CreatedAt     time.Time `json:"createdAt"`
}
