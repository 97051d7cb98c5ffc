package db

import (
	"errors"
	"testing"
	"time"
)

func TestForceExpireCascadesToDevices(t *testing.T) {
	database := openTestDB(t)
	resellerID := seedReseller(t, database, 5)
	seedPendingCode(t, database, "123456", "DEV-EXP1", 10*time.Minute)

	result, err := NewRedemptionRepository(database).Redeem(redeemParams(resellerID, "123456", 1))
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	streamTokens := NewStreamTokenRepository(database)
	if _, err := streamTokens.Replace(result.Device.ID, "hash-exp1", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	entitlements := NewEntitlementRepository(database)
	if err := entitlements.ForceExpire(result.Entitlement.ID); err != nil {
		t.Fatalf("ForceExpire() error = %v", err)
	}

	expired, err := entitlements.FindActiveForUser(result.User.ID)
	if err != nil {
		t.Fatalf("FindActiveForUser() error = %v", err)
	}
	if expired.ExpiresAt == nil || expired.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("expiry = %v, want in the past", expired.ExpiresAt)
	}

	device, err := NewDeviceRepository(database).FindByUID("DEV-EXP1")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	if device.IsActive {
		t.Fatal("device is still active after force-expire")
	}

	if _, err := streamTokens.FindValidByHash("hash-exp1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindValidByHash() error = %v, want ErrNotFound", err)
	}
}

func TestForceExpireUnknownEntitlement(t *testing.T) {
	database := openTestDB(t)

	if err := NewEntitlementRepository(database).ForceExpire("ent_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ForceExpire() error = %v, want ErrNotFound", err)
	}
}

func TestFindActiveForUserPrefersLatest(t *testing.T) {
	database := openTestDB(t)
	resellerID := seedReseller(t, database, 5)
	seedPendingCode(t, database, "111222", "DEV-EXP2", 10*time.Minute)

	result, err := NewRedemptionRepository(database).Redeem(redeemParams(resellerID, "111222", 1))
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	// Insert an older entitlement for the same user directly; the schema
	// does not forbid it.
	old := time.Now().UTC().Add(-48 * time.Hour)
	id, err := GenerateID("ent")
	if err != nil {
		t.Fatalf("GenerateID() error = %v", err)
	}
	_, err = database.Exec(
		`INSERT INTO entitlements (id, code, reseller_id, assigned_user_id, duration_months, max_devices,
		 is_lifetime, activated_at, expiration_date, created_at)
		 VALUES (?, '999999', ?, ?, 12, 1, 0, ?, ?, ?)`,
		id, resellerID, result.User.ID, old, old.AddDate(1, 0, 0), old,
	)
	if err != nil {
		t.Fatalf("inserting old entitlement: %v", err)
	}

	active, err := NewEntitlementRepository(database).FindActiveForUser(result.User.ID)
	if err != nil {
		t.Fatalf("FindActiveForUser() error = %v", err)
	}
	if active.ID != result.Entitlement.ID {
		t.Fatalf("active entitlement = %s, want the most recently activated %s", active.ID, result.Entitlement.ID)
	}
}
