package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// seedReseller creates a reseller and credits it with the given points.
func seedReseller(t *testing.T, database *DB, points int) string {
	t.Helper()

	repo := NewResellerRepository(database)
	reseller, err := repo.Create("Test Reseller", "US", "reseller@example.com", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if points > 0 {
		if _, err := repo.CreditPoints(reseller.ID, points, float64(points), "INV-1"); err != nil {
			t.Fatalf("CreditPoints() error = %v", err)
		}
	}

	return reseller.ID
}

// seedPendingCode inserts a live pending code for a device.
func seedPendingCode(t *testing.T, database *DB, code, deviceID string, ttl time.Duration) {
	t.Helper()

	repo := NewPendingCodeRepository(database)
	if _, err := repo.Insert(code, deviceID, "android", time.Now().UTC().Add(ttl)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}
