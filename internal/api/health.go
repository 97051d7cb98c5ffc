package api

import (
	"net/http"
	"time"

	"servotv/internal/db"
)

type HealthHandler struct {
	service  string
	database *db.DB
	started  time.Time
}

func NewHealthHandler(service string, database *db.DB) *HealthHandler {
	return &HealthHandler{service: service, database: database, started: time.Now().UTC()}
}

// Check reports liveness plus a database ping. Devices poll this before
// attempting registration, so it stays unauthenticated and cheap.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	if err := h.database.Ping(); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"service":        h.service,
		"status":         result,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"checks": map[string]string{
			"database": dbStatus,
		},
	})
}
