package handlers

import (
	"net/http"
	"strconv"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
	"github.com/Olafs-World/agent-chatroom/internal/models"
)

// PollResponse carries new messages and the cursor for the next poll.
type PollResponse struct {
	Messages []models.Message `json:"messages"`
	Next     int              `json:"next"`
}

// Poll handles GET /messages/poll?after=N. It holds no per-client state;
// the cursor round-trips through the client.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = n
	}

	msgs, next := h.store.SliceFrom(after)

	result := "messages"
	if len(msgs) == 0 {
		result = "empty"
	}
	metrics.PollRequests.WithLabelValues(result).Inc()

	h.JSON(w, http.StatusOK, PollResponse{Messages: msgs, Next: next})
}
