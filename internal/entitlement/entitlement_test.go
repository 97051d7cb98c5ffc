package entitlement

import (
	"testing"
	"time"

	"servotv/internal/models"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
		ok    bool
	}{
		{input: "1year", want: KindAnnual, ok: true},
		{input: "lifetime", want: KindLifetime, ok: true},
		{input: "2years", ok: false},
		{input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseKind(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseKind(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKindPricing(t *testing.T) {
	if got := KindAnnual.PointsCost(); got != 1 {
		t.Fatalf("annual cost = %d, want 1", got)
	}
	if got := KindLifetime.PointsCost(); got != 2 {
		t.Fatalf("lifetime cost = %d, want 2", got)
	}
	if got := KindAnnual.DurationMonths(); got != 12 {
		t.Fatalf("annual months = %d, want 12", got)
	}
	if got := KindLifetime.DurationMonths(); got != 1200 {
		t.Fatalf("lifetime months = %d, want 1200", got)
	}
}

func TestExpiryFrom(t *testing.T) {
	activated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	annual := KindAnnual.ExpiryFrom(activated)
	if days := annual.Sub(activated).Hours() / 24; days != 365 {
		t.Fatalf("annual expiry = %v days, want 365", days)
	}

	lifetime := KindLifetime.ExpiryFrom(activated)
	if !lifetime.After(activated.AddDate(99, 0, 0)) {
		t.Fatalf("lifetime expiry %v is not far enough in the future", lifetime)
	}
}

func TestIsActive(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	activated := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		ent  *models.Entitlement
		want bool
	}{
		{name: "unexpired", ent: &models.Entitlement{ActivatedAt: &activated, ExpiresAt: &future}, want: true},
		{name: "expired", ent: &models.Entitlement{ActivatedAt: &activated, ExpiresAt: &past}, want: false},
		{name: "never_activated", ent: &models.Entitlement{ExpiresAt: &future}, want: false},
		{name: "no_expiry", ent: &models.Entitlement{ActivatedAt: &activated}, want: false},
		{name: "nil", ent: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsActive(tt.ent, now); got != tt.want {
				t.Fatalf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Now().UTC()
	activated := now.Add(-24 * time.Hour)

	in10 := now.Add(10*24*time.Hour + time.Minute)
	e := &models.Entitlement{ActivatedAt: &activated, ExpiresAt: &in10}
	if got := DaysRemaining(e, now); got != 10 {
		t.Fatalf("DaysRemaining() = %d, want 10", got)
	}

	past := now.Add(-time.Hour)
	e = &models.Entitlement{ActivatedAt: &activated, ExpiresAt: &past}
	if got := DaysRemaining(e, now); got != 0 {
		t.Fatalf("DaysRemaining() on expired = %d, want 0", got)
	}
}
