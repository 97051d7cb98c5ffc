package db

import (
	"errors"
	"testing"
	"time"
)

func TestPendingCodeSingleLivePerDevice(t *testing.T) {
	database := openTestDB(t)
	repo := NewPendingCodeRepository(database)

	now := time.Now().UTC()

	first, err := repo.Insert("123456", "DEV-ONE", "android", now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// A second unused code for the same device violates the partial unique
	// index.
	if _, err := repo.Insert("654321", "DEV-ONE", "android", now.Add(10*time.Minute)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert() error = %v, want ErrDuplicate", err)
	}

	live, err := repo.FindLiveByDevice("DEV-ONE", now)
	if err != nil {
		t.Fatalf("FindLiveByDevice() error = %v", err)
	}
	if live.Code != first.Code {
		t.Fatalf("live code = %q, want %q", live.Code, first.Code)
	}
}

func TestPendingCodeExpiredRowIsReplaced(t *testing.T) {
	database := openTestDB(t)
	repo := NewPendingCodeRepository(database)

	now := time.Now().UTC()

	if _, err := repo.Insert("123456", "DEV-TWO", "android", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// The expired unused row no longer blocks a fresh code.
	fresh, err := repo.Insert("654321", "DEV-TWO", "android", now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Insert() after expiry error = %v", err)
	}

	live, err := repo.FindLiveByDevice("DEV-TWO", now)
	if err != nil {
		t.Fatalf("FindLiveByDevice() error = %v", err)
	}
	if live.Code != fresh.Code {
		t.Fatalf("live code = %q, want %q", live.Code, fresh.Code)
	}
}

func TestPendingCodeFindLiveSkipsExpired(t *testing.T) {
	database := openTestDB(t)
	repo := NewPendingCodeRepository(database)

	now := time.Now().UTC()

	if _, err := repo.Insert("123456", "DEV-THREE", "android", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if _, err := repo.FindLiveByDevice("DEV-THREE", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindLiveByDevice() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredKeepsConsumedHistory(t *testing.T) {
	database := openTestDB(t)
	resellerID := seedReseller(t, database, 5)
	repo := NewPendingCodeRepository(database)

	now := time.Now().UTC()

	// Consume one code, leave one expired and unused.
	seedPendingCode(t, database, "111111", "DEV-FOUR", 10*time.Minute)
	redemptions := NewRedemptionRepository(database)
	if _, err := redemptions.Redeem(redeemParams(resellerID, "111111", 1)); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	if _, err := repo.Insert("222222", "DEV-FIVE", "android", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deleted, err := repo.DeleteExpired()
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteExpired() = %d, want 1", deleted)
	}

	// The consumed record survives; device login depends on it.
	if _, err := repo.FindConsumedByDevice("DEV-FOUR"); err != nil {
		t.Fatalf("FindConsumedByDevice() error = %v", err)
	}
}
