// Package entitlement holds the pure subscription-expiry rules shared by the
// activation and streaming paths. All timestamps are normalized to UTC before
// comparison so that rows written by different paths compare consistently.
package entitlement

import (
	"time"

	"servotv/internal/constants"
	"servotv/internal/models"
)

// Kind names the two subscription products a reseller can redeem.
type Kind string

const (
	KindAnnual   Kind = "1year"
	KindLifetime Kind = "lifetime"
)

const (
	annualDuration = 365 * 24 * time.Hour
	// Lifetime subscriptions carry a far-future expiry instead of a null so
	// that every expiry comparison stays total.
	lifetimeDuration = 100 * 365 * 24 * time.Hour

	annualMonths   = 12
	lifetimeMonths = 1200
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindAnnual:
		return KindAnnual, true
	case KindLifetime:
		return KindLifetime, true
	}
	return "", false
}

func (k Kind) PointsCost() int {
	if k == KindLifetime {
		return constants.PointsCostLifetime
	}
	return constants.PointsCostAnnual
}

func (k Kind) DurationMonths() int {
	if k == KindLifetime {
		return lifetimeMonths
	}
	return annualMonths
}

func (k Kind) ExpiryFrom(activatedAt time.Time) time.Time {
	if k == KindLifetime {
		return activatedAt.UTC().Add(lifetimeDuration)
	}
	return activatedAt.UTC().Add(annualDuration)
}

// IsActive reports whether the entitlement grants access at the given
// instant. An entitlement that was never activated grants nothing.
func IsActive(e *models.Entitlement, at time.Time) bool {
	if e == nil || e.ActivatedAt == nil || e.ExpiresAt == nil {
		return false
	}
	return at.UTC().Before(e.ExpiresAt.UTC())
}

// DaysRemaining floors to whole days; an expired entitlement reports 0.
func DaysRemaining(e *models.Entitlement, at time.Time) int {
	if !IsActive(e, at) {
		return 0
	}
	return int(e.ExpiresAt.UTC().Sub(at.UTC()).Hours() / 24)
}
