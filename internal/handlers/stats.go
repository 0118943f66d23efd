package handlers

import (
	"net/http"
)

// StatsResponse summarizes the room.
type StatsResponse struct {
	Messages    int      `json:"messages"`
	Agents      []string `json:"agents"`
	Subscribers int      `json:"subscribers"`
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, StatsResponse{
		Messages:    h.store.Len(),
		Agents:      h.store.Agents(),
		Subscribers: h.fanout.Len(),
	})
}
