package server

import (
	"net/http"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Sessions  int       `json:"activeSessions"`
	Users     int       `json:"registeredUsers"`
	PublicURL string    `json:"publicUrl,omitempty"`
}

// handleHealthCheck returns basic liveness information.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(ms.started).Round(time.Second).String(),
		Sessions:  ms.sessions.Count(),
		Users:     ms.registry.Count(),
		PublicURL: ms.ngrokService.GetPublicURL(),
	}
	ms.respondJSON(w, http.StatusOK, health)
}
