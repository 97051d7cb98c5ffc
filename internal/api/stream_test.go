package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"servotv/internal/db"
)

// activateViaAPI walks the real flow: register the device, redeem its code.
func activateViaAPI(t *testing.T, server *Server, database *db.DB, deviceUID, mediaLink string) (resellerToken string) {
	t.Helper()

	seedResellerAccount(t, database, "reseller@example.com", 10)
	resellerToken = loginReseller(t, server, "reseller@example.com")

	register := doJSON(t, server, http.MethodPost, "/api/v1/device/register", "",
		fmt.Sprintf(`{"device_type":"android","actual_device_id":%q}`, deviceUID))
	var reg RegisterDeviceResponse
	decodeBody(t, register, &reg)

	body := fmt.Sprintf(`{"activationCode":%q,"subscriptionDuration":"1year"`, reg.ActivationCode)
	if mediaLink != "" {
		body += fmt.Sprintf(`,"mediaLink":%q`, mediaLink)
	}
	body += `}`

	rr := doJSON(t, server, http.MethodPost, "/api/v1/activate-code", resellerToken, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("activation status = %d, body=%q", rr.Code, rr.Body.String())
	}

	return resellerToken
}

func TestDeviceLoginAfterActivation(t *testing.T) {
	server, database := newTestServer(t)
	activateViaAPI(t, server, database, "DEV-LOGIN001", "http://upstream.example/list.m3u")

	rr := doJSON(t, server, http.MethodPost, "/api/v1/device/login", "", `{"device_id":"DEV-LOGIN001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var resp DeviceLoginResponse
	decodeBody(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login returned no token")
	}
	if resp.Subscription.IsLifetime {
		t.Fatal("1year subscription reported as lifetime")
	}
	if resp.Subscription.DaysLeft < 360 {
		t.Fatalf("days_left = %d, want about 365", resp.Subscription.DaysLeft)
	}
}

func TestDeviceLoginUnknownDevice(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/v1/device/login", "", `{"device_id":"DEV-GHOST001"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusForbidden, rr.Body.String())
	}
}

func TestStreamTokenAndEmptyPlaylist(t *testing.T) {
	server, database := newTestServer(t)
	activateViaAPI(t, server, database, "DEV-EMPTY001", "")

	// Give the user one active source so the token can be minted, then
	// deactivate it before the playlist is fetched.
	device, err := db.NewDeviceRepository(database).FindByUID("DEV-EMPTY001")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	sources := db.NewPlaylistSourceRepository(database)
	source, err := sources.Create(*device.UserID, "temp", "http://upstream.example/temp.m3u")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rr := doJSON(t, server, http.MethodPost, "/api/v1/stream/token", "", `{"device_id":"DEV-EMPTY001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("token status = %d, body=%q", rr.Code, rr.Body.String())
	}
	var tokenResp StreamTokenResponse
	decodeBody(t, rr, &tokenResp)
	if !strings.Contains(tokenResp.PlaylistURL, "token="+tokenResp.Token) {
		t.Fatalf("playlist_url %q does not embed the token", tokenResp.PlaylistURL)
	}

	if err := sources.SetActive(source.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	// Zero active sources is an empty-but-valid document, not an error.
	playlist := doJSON(t, server, http.MethodGet, "/api/v1/stream/playlist?token="+tokenResp.Token, "", "")
	if playlist.Code != http.StatusOK {
		t.Fatalf("playlist status = %d, body=%q", playlist.Code, playlist.Body.String())
	}
	if playlist.Body.String() != "#EXTM3U\n" {
		t.Fatalf("playlist body = %q, want %q", playlist.Body.String(), "#EXTM3U\n")
	}
}

func TestStreamTokenWithoutMedia(t *testing.T) {
	server, database := newTestServer(t)
	activateViaAPI(t, server, database, "DEV-NOMEDIA1", "")

	rr := doJSON(t, server, http.MethodPost, "/api/v1/stream/token", "", `{"device_id":"DEV-NOMEDIA1"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusForbidden, rr.Body.String())
	}

	var errResp ErrorResponse
	decodeBody(t, rr, &errResp)
	if errResp.Error.Code != ErrCodeNoMedia {
		t.Fatalf("error.code = %q, want %q", errResp.Error.Code, ErrCodeNoMedia)
	}
}

func TestPlaylistRejectsInvalidToken(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/api/v1/stream/playlist?token=bogus", "", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	missing := doJSON(t, server, http.MethodGet, "/api/v1/stream/playlist", "", "")
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want %d", missing.Code, http.StatusUnauthorized)
	}
}

func TestPlayAndLiveRoundTrip(t *testing.T) {
	server, database := newTestServer(t)
	activateViaAPI(t, server, database, "DEV-PLAY0001", "http://upstream.example/list.m3u")

	login := doJSON(t, server, http.MethodPost, "/api/v1/device/login", "", `{"device_id":"DEV-PLAY0001"}`)
	var loginResp DeviceLoginResponse
	decodeBody(t, login, &loginResp)

	play := doJSON(t, server, http.MethodPost, "/api/v1/stream/play", loginResp.Token,
		`{"stream_url":"http://upstream.example/ch1.ts","content_id":"ch1","content_name":"Channel One"}`)
	if play.Code != http.StatusOK {
		t.Fatalf("play status = %d, body=%q", play.Code, play.Body.String())
	}
	var playResp PlayResponse
	decodeBody(t, play, &playResp)
	if playResp.PlayToken == "" {
		t.Fatal("no play token returned")
	}

	live := doJSON(t, server, http.MethodGet, "/api/v1/stream/live?token="+playResp.PlayToken, "", "")
	if live.Code != http.StatusOK {
		t.Fatalf("live status = %d, body=%q", live.Code, live.Body.String())
	}
	var liveResp LiveResponse
	decodeBody(t, live, &liveResp)
	if liveResp.PlayURL != "http://upstream.example/ch1.ts" {
		t.Fatalf("play_url = %q, want the captured URL", liveResp.PlayURL)
	}
	if liveResp.ContentName != "Channel One" {
		t.Fatalf("content_name = %q, want %q", liveResp.ContentName, "Channel One")
	}
}

func TestPlayRequiresDeviceSession(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/v1/stream/play", "",
		`{"stream_url":"http://upstream.example/ch1.ts"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminDisableDeviceRevokesStreamToken(t *testing.T) {
	server, database := newTestServer(t)
	activateViaAPI(t, server, database, "DEV-KILL0001", "http://upstream.example/list.m3u")
	seedAdminAccount(t, database)
	adminToken := loginAdmin(t, server)

	rr := doJSON(t, server, http.MethodPost, "/api/v1/stream/token", "", `{"device_id":"DEV-KILL0001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("token status = %d, body=%q", rr.Code, rr.Body.String())
	}
	var tokenResp StreamTokenResponse
	decodeBody(t, rr, &tokenResp)

	device, err := db.NewDeviceRepository(database).FindByUID("DEV-KILL0001")
	if err != nil {
		t.Fatalf("FindByUID() error = %v", err)
	}
	rr = doJSON(t, server, http.MethodPost, "/api/v1/admin/devices/"+device.ID+"/disable", adminToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("disable status = %d, body=%q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/v1/stream/playlist?token="+tokenResp.Token, "", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("playlist status after disable = %d, want %d", rr.Code, http.StatusForbidden)
	}
}
