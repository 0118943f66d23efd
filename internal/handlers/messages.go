package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
	"github.com/Olafs-World/agent-chatroom/internal/models"
)

// AnonymousAgent is recorded when a post names no author.
const AnonymousAgent = "anonymous"

// PostMessageRequest is the body of POST /messages.
type PostMessageRequest struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// PostMessageResponse echoes the stored message.
type PostMessageResponse struct {
	OK      bool           `json:"ok"`
	Message models.Message `json:"message"`
}

// MessagesResponse is the full history.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// ListMessages handles GET /messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, MessagesResponse{Messages: h.store.Snapshot()})
}

// PostMessage handles POST /messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	agent := sanitizeName(req.Agent)
	if agent == "" {
		agent = AnonymousAgent
	}

	msg := h.store.Append(agent, req.Text)
	metrics.MessagesPosted.Inc()

	// The store lock is released by now; Notify never blocks.
	h.fanout.Notify(msg)

	h.logger.Info().
		Str("agent", msg.Agent).
		Int("index", msg.Index).
		Str("text", truncate(msg.Text, 200)).
		Msg("message posted")

	h.JSON(w, http.StatusOK, PostMessageResponse{OK: true, Message: msg})
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n-3]) + "..."
	}
	return s
}
