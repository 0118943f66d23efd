package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.2.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint. It needs no password; the
// room itself lives in memory, so only the optional Redis backend can
// degrade it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		redisStart := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			resp.Checks = map[string]Check{"redis": {Status: "fail", Message: "connection failed"}}
			resp.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			resp.Checks = map[string]Check{"redis": {Status: "pass", Latency: time.Since(redisStart).String()}}
		}
	}

	h.JSON(w, statusCode, resp)
}
