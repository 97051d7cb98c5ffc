package activation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/entitlement"
)

type fixture struct {
	service   *Service
	database  *db.DB
	resellers *db.ResellerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	resellers := db.NewResellerRepository(database)
	service := NewService(
		auth.NewActivationCodeService(10*time.Minute),
		db.NewPendingCodeRepository(database),
		db.NewRedemptionRepository(database),
		resellers,
		db.NewUserRepository(database),
	)

	return &fixture{service: service, database: database, resellers: resellers}
}

func (f *fixture) seedReseller(t *testing.T, points int) string {
	t.Helper()

	reseller, err := f.resellers.Create("Test Reseller", "", "reseller@example.com", "hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if points > 0 {
		if _, err := f.resellers.CreditPoints(reseller.ID, points, 0, ""); err != nil {
			t.Fatalf("CreditPoints() error = %v", err)
		}
	}
	return reseller.ID
}

func TestIssueIsIdempotentWithinTTL(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Issue("android", "DEV-SAME")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	second, err := f.service.Issue("android", "DEV-SAME")
	if err != nil {
		t.Fatalf("second Issue() error = %v", err)
	}

	if first.Code != second.Code {
		t.Fatalf("codes differ: %q vs %q, want the same live code", first.Code, second.Code)
	}
}

func TestIssueGeneratesDeviceID(t *testing.T) {
	f := newFixture(t)

	code, err := f.service.Issue("", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if !strings.HasPrefix(code.DeviceID, "DEV-") || len(code.DeviceID) != 12 {
		t.Fatalf("DeviceID = %q, want DEV- prefix with 8 random chars", code.DeviceID)
	}
	if code.DeviceType != "unknown" {
		t.Fatalf("DeviceType = %q, want %q", code.DeviceType, "unknown")
	}
}

func TestRedeemFullFlow(t *testing.T) {
	f := newFixture(t)
	resellerID := f.seedReseller(t, 5)

	code, err := f.service.Issue("android", "DEV-FLOW")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	result, err := f.service.Redeem(RedeemRequest{
		ResellerID: resellerID,
		Code:       code.Code,
		Kind:       entitlement.KindLifetime,
		Username:   "customer1",
	})
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	if result.User.Username != "customer1" {
		t.Fatalf("username = %q, want %q", result.User.Username, "customer1")
	}
	if result.RemainingPoints != 3 {
		t.Fatalf("RemainingPoints = %d, want 3", result.RemainingPoints)
	}
	if result.Entitlement.ExpiresAt == nil || !result.Entitlement.ExpiresAt.After(time.Now().AddDate(99, 0, 0)) {
		t.Fatalf("lifetime expiry = %v, want about 100 years out", result.Entitlement.ExpiresAt)
	}

	// Scenario B: the same code cannot be redeemed twice.
	_, err = f.service.Redeem(RedeemRequest{
		ResellerID: resellerID,
		Code:       code.Code,
		Kind:       entitlement.KindAnnual,
	})
	if !errors.Is(err, ErrCodeUsed) {
		t.Fatalf("second Redeem() error = %v, want ErrCodeUsed", err)
	}
}

func TestRedeemErrorLadder(t *testing.T) {
	f := newFixture(t)
	resellerID := f.seedReseller(t, 1)

	// Unknown code.
	_, err := f.service.Redeem(RedeemRequest{ResellerID: resellerID, Code: "000000", Kind: entitlement.KindAnnual})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("unknown code error = %v, want ErrCodeNotFound", err)
	}

	// Insufficient points: lifetime costs 2, the reseller has 1.
	code, err := f.service.Issue("android", "DEV-POOR")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	_, err = f.service.Redeem(RedeemRequest{ResellerID: resellerID, Code: code.Code, Kind: entitlement.KindLifetime})
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("insufficient points error = %v, want ErrInsufficientPoints", err)
	}

	// Disabled reseller.
	if err := f.resellers.SetActive(resellerID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	_, err = f.service.Redeem(RedeemRequest{ResellerID: resellerID, Code: code.Code, Kind: entitlement.KindAnnual})
	if !errors.Is(err, ErrResellerInactive) {
		t.Fatalf("inactive reseller error = %v, want ErrResellerInactive", err)
	}
}

func TestRedeemFallsBackToGeneratedUsername(t *testing.T) {
	f := newFixture(t)
	resellerID := f.seedReseller(t, 5)

	first, err := f.service.Issue("android", "DEV-U1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := f.service.Redeem(RedeemRequest{
		ResellerID: resellerID,
		Code:       first.Code,
		Kind:       entitlement.KindAnnual,
		Username:   "taken",
	}); err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	second, err := f.service.Issue("android", "DEV-U2")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	result, err := f.service.Redeem(RedeemRequest{
		ResellerID: resellerID,
		Code:       second.Code,
		Kind:       entitlement.KindAnnual,
		Username:   "taken",
	})
	if err != nil {
		t.Fatalf("Redeem() with taken username error = %v", err)
	}

	if !strings.HasPrefix(result.User.Username, "SERVO-") {
		t.Fatalf("username = %q, want generated SERVO- name", result.User.Username)
	}
}

func TestGenerateDeviceID(t *testing.T) {
	id := GenerateDeviceID()
	if !strings.HasPrefix(id, "DEV-") || len(id) != 12 {
		t.Fatalf("GenerateDeviceID() = %q, want DEV-XXXXXXXX", id)
	}
	if id != strings.ToUpper(id) {
		t.Fatalf("GenerateDeviceID() = %q, want uppercase", id)
	}
}
