package stream

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"servotv/internal/auth"
	"servotv/internal/db"
)

type fixture struct {
	service      *Service
	database     *db.DB
	entitlements *db.EntitlementRepository
	devices      *db.DeviceRepository
	sources      *db.PlaylistSourceRepository
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

	jwtService := auth.NewJWTService("0123456789abcdef0123456789abcdef", 15*time.Minute, time.Hour, 24*time.Hour)
	entitlements := db.NewEntitlementRepository(database)
	devices := db.NewDeviceRepository(database)
	sources := db.NewPlaylistSourceRepository(database)

	service := NewService(
		jwtService,
		devices,
		db.NewUserRepository(database),
		db.NewPendingCodeRepository(database),
		entitlements,
		sources,
		db.NewStreamTokenRepository(database),
		db.NewPlayTokenRepository(database),
		24*time.Hour,
		30*time.Minute,
	)

	return &fixture{
		service:      service,
		database:     database,
		entitlements: entitlements,
		devices:      devices,
		sources:      sources,
	}
}

// activateDevice runs a real redemption so the device, user and entitlement
// rows exist exactly as production writes them.
func (f *fixture) activateDevice(t *testing.T, deviceUID string, mediaLink string) *db.RedeemResult {
	t.Helper()

	resellers := db.NewResellerRepository(f.database)
	reseller, err := resellers.FindByEmail("reseller@example.com")
	if errors.Is(err, db.ErrNotFound) {
		reseller, err = resellers.Create("Test Reseller", "", "reseller@example.com", "hash")
	}
	if err != nil {
		t.Fatalf("seeding reseller: %v", err)
	}
	if _, err := resellers.CreditPoints(reseller.ID, 10, 0, ""); err != nil {
		t.Fatalf("CreditPoints() error = %v", err)
	}

	now := time.Now().UTC()
	code := deviceUID[len(deviceUID)-6:]
	pendingCodes := db.NewPendingCodeRepository(f.database)
	if _, err := pendingCodes.Insert(code, deviceUID, "android", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var link *string
	if mediaLink != "" {
		link = &mediaLink
	}

	result, err := db.NewRedemptionRepository(f.database).Redeem(db.RedeemParams{
		ResellerID:     reseller.ID,
		Code:           code,
		Username:       "user-" + deviceUID,
		MediaLink:      link,
		DurationMonths: 12,
		MaxDevices:     1,
		PointsCost:     1,
		ExpiresAt:      now.AddDate(0, 0, 365),
		Now:            now,
	})
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}

	return result
}

func TestLoginIssuesDeviceToken(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-LOG111", "")

	result, err := f.service.Login("DEV-LOG111", "203.0.113.9")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.Token == "" {
		t.Fatal("login returned no token")
	}
	if result.User.ID != activated.User.ID {
		t.Fatalf("user = %s, want %s", result.User.ID, activated.User.ID)
	}
	if result.DaysLeft < 360 || result.DaysLeft > 365 {
		t.Fatalf("DaysLeft = %d, want about 365", result.DaysLeft)
	}

	device, err := f.devices.FindByUID("DEV-LOG111")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	if device.LastLoginAt == nil {
		t.Fatal("login was not recorded")
	}
}

func TestLoginUnknownDevice(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service.Login("DEV-NOBODY", ""); !errors.Is(err, ErrDeviceNotActivated) {
		t.Fatalf("Login() error = %v, want ErrDeviceNotActivated", err)
	}
}

func TestStreamTokenLifecycle(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-TOK111", "http://upstream.example/list.m3u")

	minted, err := f.service.MintStreamToken("DEV-TOK111")
	if err != nil {
		t.Fatalf("MintStreamToken() error = %v", err)
	}
	if minted.Token == "" {
		t.Fatal("no token minted")
	}

	authz, err := f.service.ResolveStreamToken(minted.Token)
	if err != nil {
		t.Fatalf("ResolveStreamToken() error = %v", err)
	}
	if authz.User.ID != activated.User.ID {
		t.Fatalf("resolved user = %s, want %s", authz.User.ID, activated.User.ID)
	}

	// Minting again replaces the previous token.
	second, err := f.service.MintStreamToken("DEV-TOK111")
	if err != nil {
		t.Fatalf("second MintStreamToken() error = %v", err)
	}
	if _, err := f.service.ResolveStreamToken(minted.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token still resolves, error = %v, want ErrInvalidToken", err)
	}
	if _, err := f.service.ResolveStreamToken(second.Token); err != nil {
		t.Fatalf("new token does not resolve: %v", err)
	}

	// Garbage never resolves.
	if _, err := f.service.ResolveStreamToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token error = %v, want ErrInvalidToken", err)
	}
}

func TestStreamTokenRequiresMedia(t *testing.T) {
	f := newFixture(t)
	f.activateDevice(t, "DEV-NOM111", "")

	if _, err := f.service.MintStreamToken("DEV-NOM111"); !errors.Is(err, ErrNoPlaylistSources) {
		t.Fatalf("MintStreamToken() error = %v, want ErrNoPlaylistSources", err)
	}
}

func TestForceExpiredSubscriptionDeniesEveryStage(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-EXP111", "http://upstream.example/list.m3u")

	minted, err := f.service.MintStreamToken("DEV-EXP111")
	if err != nil {
		t.Fatalf("MintStreamToken() error = %v", err)
	}

	if err := f.entitlements.ForceExpire(activated.Entitlement.ID); err != nil {
		t.Fatalf("ForceExpire() error = %v", err)
	}

	// The cascade deactivates the device and drops its stream token, so
	// every stage now denies.
	device, err := f.devices.FindByUID("DEV-EXP111")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	if device.IsActive {
		t.Fatal("device is still active after force-expire")
	}

	if _, err := f.service.Login("DEV-EXP111", ""); !errors.Is(err, ErrDeviceNotActivated) {
		t.Fatalf("Login() error = %v, want ErrDeviceNotActivated", err)
	}
	if _, err := f.service.MintStreamToken("DEV-EXP111"); !errors.Is(err, ErrDeviceNotActivated) {
		t.Fatalf("MintStreamToken() error = %v, want ErrDeviceNotActivated", err)
	}
	if _, err := f.service.ResolveStreamToken(minted.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ResolveStreamToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestNaturallyExpiredSubscriptionKeepsDeviceActive(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-NAT111", "http://upstream.example/list.m3u")

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := f.database.Exec(
		`UPDATE entitlements SET expiration_date = ? WHERE id = ?`,
		past, activated.Entitlement.ID,
	); err != nil {
		t.Fatalf("expiring entitlement: %v", err)
	}

	device, err := f.devices.FindByUID("DEV-NAT111")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	if !device.IsActive {
		t.Fatal("device should remain active when the subscription merely lapses")
	}

	if _, err := f.service.Login("DEV-NAT111", ""); !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("Login() error = %v, want ErrSubscriptionExpired", err)
	}
	if _, err := f.service.MintStreamToken("DEV-NAT111"); !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("MintStreamToken() error = %v, want ErrSubscriptionExpired", err)
	}
}

func TestActiveSourcesIncludeLegacyMediaLink(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-SRC111", "http://legacy.example/old.m3u")

	if _, err := f.sources.Create(activated.User.ID, "extra", "http://upstream.example/extra.m3u"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	minted, err := f.service.MintStreamToken("DEV-SRC111")
	if err != nil {
		t.Fatalf("MintStreamToken() error = %v", err)
	}

	sources, err := f.service.ActiveSourcesForToken(minted.Token)
	if err != nil {
		t.Fatalf("ActiveSourcesForToken() error = %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[0].Name != "default" || sources[0].MediaLink != "http://legacy.example/old.m3u" {
		t.Fatalf("first source = %+v, want the legacy media link named default", sources[0])
	}
}

func TestPlayTokenRoundTrip(t *testing.T) {
	f := newFixture(t)
	activated := f.activateDevice(t, "DEV-PLY111", "http://upstream.example/list.m3u")

	minted, err := f.service.MintPlayToken("DEV-PLY111", "http://upstream.example/ch1.ts", "ch1", "Channel One")
	if err != nil {
		t.Fatalf("MintPlayToken() error = %v", err)
	}

	stored, err := f.service.ResolvePlayToken(minted.Token)
	if err != nil {
		t.Fatalf("ResolvePlayToken() error = %v", err)
	}
	if stored.StreamURL != "http://upstream.example/ch1.ts" {
		t.Fatalf("StreamURL = %q, want the captured URL", stored.StreamURL)
	}
	if stored.ContentName != "Channel One" {
		t.Fatalf("ContentName = %q, want %q", stored.ContentName, "Channel One")
	}

	// Expiring the subscription kills the play token too.
	if err := f.entitlements.ForceExpire(activated.Entitlement.ID); err != nil {
		t.Fatalf("ForceExpire() error = %v", err)
	}
	if _, err := f.service.ResolvePlayToken(minted.Token); !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("ResolvePlayToken() error = %v, want ErrSubscriptionExpired", err)
	}
}
