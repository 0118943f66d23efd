package handlers

import (
	"net/http"
	"strconv"

	"github.com/Olafs-World/agent-chatroom/internal/ui"
)

// Index serves the browser UI.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page := ui.Index()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
