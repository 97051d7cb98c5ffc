// Package ws delivers support-ticket events to connected panel clients over
// websockets. The hub fans a ticket message out to the ticket's reseller and
// to every connected admin.
package ws

import (
	"log/slog"
	"sync"

	"servotv/internal/auth"
	"servotv/internal/models"
)

// slowClientLimit is how many undelivered events a client may accumulate
// before it is disconnected instead of blocking the hub.
const slowClientLimit = 64

type TicketEvent struct {
	Type    string                `json:"type"`
	Ticket  *models.SupportTicket `json:"ticket,omitempty"`
	Message *models.TicketMessage `json:"message,omitempty"`
}

// envelope targets an event: admins always receive it, plus the one reseller
// the ticket belongs to.
type envelope struct {
	resellerID string
	event      *TicketEvent
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("ws client connected", "subject_type", client.subjectType, "subject_id", client.subjectID)

		case client := <-h.unregister:
			h.removeClient(client)

		case env := <-h.broadcast:
			h.deliver(env)

		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Publish queues a ticket event for delivery. Publishing never blocks the
// caller; if the hub's buffer is full the event is dropped with a log line,
// since the thread history in the database remains authoritative.
func (h *Hub) Publish(resellerID string, event *TicketEvent) {
	select {
	case h.broadcast <- envelope{resellerID: resellerID, event: event}:
	default:
		slog.Warn("dropping ticket event, hub buffer full", "reseller_id", resellerID, "type", event.Type)
	}
}

func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.subjectType == auth.SubjectAdmin ||
			(client.subjectType == auth.SubjectReseller && client.subjectID == env.resellerID) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.trySend(env.event) {
			slog.Warn("disconnecting slow ws client", "subject_type", client.subjectType, "subject_id", client.subjectID)
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}
