package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"servotv/internal/audit"
	"servotv/internal/auth"
	"servotv/internal/db"
	"servotv/internal/models"
	"servotv/internal/ws"
)

type TicketHandler struct {
	tickets  *db.TicketRepository
	hub      *ws.Hub
	recorder *audit.Recorder
	policy   *bluemonday.Policy
}

func NewTicketHandler(tickets *db.TicketRepository, hub *ws.Hub, recorder *audit.Recorder) *TicketHandler {
	return &TicketHandler{
		tickets:  tickets,
		hub:      hub,
		recorder: recorder,
		// Ticket text is rendered in panel UIs; strip all markup.
		policy: bluemonday.StrictPolicy(),
	}
}

func generateTicketNumber() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}

type CreateTicketRequest struct {
	Subject     string `json:"subject" validate:"required,min=3,max=256"`
	Description string `json:"description" validate:"required,min=3,max=4096"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// POST /api/v1/tickets (reseller)
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if req.Priority == "" {
		req.Priority = "normal"
	}

	_, resellerID := GetSubject(r)

	ticket, err := h.tickets.Create(
		generateTicketNumber(),
		resellerID,
		h.policy.Sanitize(req.Subject),
		h.policy.Sanitize(req.Description),
		req.Priority,
	)
	if err != nil {
		slog.Error("error creating ticket", "error", err)
		internalError(w)
		return
	}

	h.recorder.Record(audit.Entry{
		Actor:        audit.Reseller(resellerID),
		Action:       "ticket.create",
		ResourceType: "ticket",
		ResourceID:   ticket.ID,
		IPAddress:    r.RemoteAddr,
	})

	h.hub.Publish(resellerID, &ws.TicketEvent{Type: "ticket.created", Ticket: ticket})

	writeJSON(w, http.StatusCreated, ticket)
}

// GET /api/v1/tickets lists the caller's tickets; admins see all of them.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectType, subjectID := GetSubject(r)

	var (
		tickets []*models.SupportTicket
		err     error
	)
	if subjectType == auth.SubjectAdmin {
		tickets, err = h.tickets.FindAll()
	} else {
		tickets, err = h.tickets.FindByReseller(subjectID)
	}
	if err != nil {
		slog.Error("error listing tickets", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

// loadTicket fetches a ticket and enforces that resellers only see their own.
func (h *TicketHandler) loadTicket(w http.ResponseWriter, r *http.Request) (*models.SupportTicket, bool) {
	ticketID := chi.URLParam(r, "id")

	ticket, err := h.tickets.FindByID(ticketID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Ticket not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error loading ticket", "ticket_id", ticketID, "error", err)
		internalError(w)
		return nil, false
	}

	subjectType, subjectID := GetSubject(r)
	if subjectType == auth.SubjectReseller && ticket.ResellerID != subjectID {
		notFound(w, "Ticket not found")
		return nil, false
	}

	return ticket, true
}

// GET /api/v1/tickets/{id}/messages. Internal admin notes are withheld from
// resellers.
func (h *TicketHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}

	subjectType, _ := GetSubject(r)
	includeInternal := subjectType == auth.SubjectAdmin

	messages, err := h.tickets.Messages(ticket.ID, includeInternal)
	if err != nil {
		slog.Error("error loading ticket messages", "ticket_id", ticket.ID, "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "messages": messages})
}

type PostMessageRequest struct {
	Message    string `json:"message" validate:"required,min=1,max=4096"`
	IsInternal bool   `json:"isInternal"`
}

// POST /api/v1/tickets/{id}/messages
func (h *TicketHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}

	if ticket.Status == models.TicketStatusClosed {
		conflict(w, "Ticket is closed")
		return
	}

	var req PostMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	subjectType, subjectID := GetSubject(r)
	if req.IsInternal && subjectType != auth.SubjectAdmin {
		forbidden(w, ErrCodeForbidden, "Only admins can post internal notes")
		return
	}

	message, err := h.tickets.AddMessage(ticket.ID, subjectType, subjectID, h.policy.Sanitize(req.Message), req.IsInternal)
	if err != nil {
		slog.Error("error posting ticket message", "ticket_id", ticket.ID, "error", err)
		internalError(w)
		return
	}

	if subjectType == auth.SubjectAdmin && ticket.Status == models.TicketStatusOpen {
		if err := h.tickets.SetStatus(ticket.ID, models.TicketStatusInProgress); err != nil {
			slog.Error("error updating ticket status", "ticket_id", ticket.ID, "error", err)
		}
	}

	if !req.IsInternal {
		h.hub.Publish(ticket.ResellerID, &ws.TicketEvent{Type: "ticket.message", Ticket: ticket, Message: message})
	}

	writeJSON(w, http.StatusCreated, message)
}

// POST /api/v1/tickets/{id}/close (admin)
func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	ticket, ok := h.loadTicket(w, r)
	if !ok {
		return
	}

	if err := h.tickets.SetStatus(ticket.ID, models.TicketStatusClosed); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Ticket not found")
			return
		}
		slog.Error("error closing ticket", "ticket_id", ticket.ID, "error", err)
		internalError(w)
		return
	}

	_, adminID := GetSubject(r)
	h.recorder.Record(audit.Entry{
		Actor:        audit.Admin(adminID),
		Action:       "ticket.close",
		ResourceType: "ticket",
		ResourceID:   ticket.ID,
		IPAddress:    r.RemoteAddr,
	})

	h.hub.Publish(ticket.ResellerID, &ws.TicketEvent{Type: "ticket.closed", Ticket: ticket})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Ticket closed"})
}
