package api

import (
	"fmt"
	"net/http"
	"testing"

	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/models"
)

func seedAdminAccount(t *testing.T, database *db.DB) {
	t.Helper()

	hash, err := auth.HashPassword("admin-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if _, err := db.NewAdminRepository(database).Create("admin", "admin@example.com", hash, "superadmin"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func loginAdmin(t *testing.T, server *Server) string {
	t.Helper()

	rr := doJSON(t, server, http.MethodPost, "/api/v1/auth/admin/login", "",
		`{"email":"admin@example.com","password":"admin-pass"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin login status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var resp AdminLoginResponse
	decodeBody(t, rr, &resp)
	return resp.AccessToken
}

func TestTicketLifecycle(t *testing.T) {
	server, database := newTestServer(t)
	seedResellerAccount(t, database, "reseller@example.com", 0)
	seedAdminAccount(t, database)

	resellerToken := loginReseller(t, server, "reseller@example.com")
	adminToken := loginAdmin(t, server)

	created := doJSON(t, server, http.MethodPost, "/api/v1/tickets", resellerToken,
		`{"subject":"Stream keeps buffering","description":"Customer reports constant buffering on DEV-X.","priority":"high"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%q", created.Code, created.Body.String())
	}
	var ticket models.SupportTicket
	decodeBody(t, created, &ticket)
	if ticket.Status != models.TicketStatusOpen {
		t.Fatalf("status = %q, want %q", ticket.Status, models.TicketStatusOpen)
	}

	// The admin sees the ticket without owning it.
	listed := doJSON(t, server, http.MethodGet, "/api/v1/tickets", adminToken, "")
	if listed.Code != http.StatusOK {
		t.Fatalf("list status = %d", listed.Code)
	}
	var listResp struct {
		Tickets []*models.SupportTicket `json:"tickets"`
	}
	decodeBody(t, listed, &listResp)
	if len(listResp.Tickets) != 1 {
		t.Fatalf("admin sees %d tickets, want 1", len(listResp.Tickets))
	}

	// Admin reply moves the ticket to in_progress; an internal note stays
	// hidden from the reseller.
	path := fmt.Sprintf("/api/v1/tickets/%s/messages", ticket.ID)
	if rr := doJSON(t, server, http.MethodPost, path, adminToken,
		`{"message":"Looking into it."}`); rr.Code != http.StatusCreated {
		t.Fatalf("admin reply status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if rr := doJSON(t, server, http.MethodPost, path, adminToken,
		`{"message":"Customer is on the flaky upstream.","isInternal":true}`); rr.Code != http.StatusCreated {
		t.Fatalf("internal note status = %d, body=%q", rr.Code, rr.Body.String())
	}

	resellerView := doJSON(t, server, http.MethodGet, path, resellerToken, "")
	var resellerMessages struct {
		Messages []*models.TicketMessage `json:"messages"`
	}
	decodeBody(t, resellerView, &resellerMessages)
	if len(resellerMessages.Messages) != 1 {
		t.Fatalf("reseller sees %d messages, want 1 (internal note hidden)", len(resellerMessages.Messages))
	}

	adminView := doJSON(t, server, http.MethodGet, path, adminToken, "")
	var adminMessages struct {
		Messages []*models.TicketMessage `json:"messages"`
	}
	decodeBody(t, adminView, &adminMessages)
	if len(adminMessages.Messages) != 2 {
		t.Fatalf("admin sees %d messages, want 2", len(adminMessages.Messages))
	}

	// Close, then posting fails.
	closePath := fmt.Sprintf("/api/v1/tickets/%s/close", ticket.ID)
	if rr := doJSON(t, server, http.MethodPost, closePath, adminToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("close status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if rr := doJSON(t, server, http.MethodPost, path, resellerToken,
		`{"message":"One more thing."}`); rr.Code != http.StatusConflict {
		t.Fatalf("post to closed ticket status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestTicketMessagesAreSanitized(t *testing.T) {
	server, database := newTestServer(t)
	seedResellerAccount(t, database, "reseller@example.com", 0)
	resellerToken := loginReseller(t, server, "reseller@example.com")

	created := doJSON(t, server, http.MethodPost, "/api/v1/tickets", resellerToken,
		`{"subject":"<script>alert(1)</script>Broken stream","description":"details here"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%q", created.Code, created.Body.String())
	}

	var ticket models.SupportTicket
	decodeBody(t, created, &ticket)
	if ticket.Subject != "Broken stream" {
		t.Fatalf("subject = %q, want markup stripped", ticket.Subject)
	}
}

func TestTicketIsolationBetweenResellers(t *testing.T) {
	server, database := newTestServer(t)
	seedResellerAccount(t, database, "first@example.com", 0)
	firstToken := loginReseller(t, server, "first@example.com")

	created := doJSON(t, server, http.MethodPost, "/api/v1/tickets", firstToken,
		`{"subject":"Private issue","description":"should stay private"}`)
	var ticket models.SupportTicket
	decodeBody(t, created, &ticket)

	seedResellerAccount(t, database, "second@example.com", 0)
	secondToken := loginReseller(t, server, "second@example.com")

	rr := doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/tickets/%s/messages", ticket.ID), secondToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign ticket status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
