package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"servotv/internal/auth"
	"servotv/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub        *ws.Hub
	jwtService *auth.JWTService
}

func NewWebSocketHandler(hub *ws.Hub, jwtService *auth.JWTService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, jwtService: jwtService}
}

// ServeWS upgrades a panel connection for realtime ticket events. The token
// travels as a query parameter because browser websocket clients cannot set
// an Authorization header.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidatePanelToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.SubjectType, claims.Subject)
	client.Start()
}
