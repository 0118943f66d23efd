package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/fanout"
	"github.com/Olafs-World/agent-chatroom/internal/store"
)

// DefaultKeepalive is the idle interval after which a stream gets a
// comment frame.
const DefaultKeepalive = 15 * time.Second

// Options carries the optional dependencies of a Handler.
type Options struct {
	Keepalive time.Duration
	Redis     *store.RedisStore // nil unless REDIS_URL is set
	Logger    zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     store.MessageStore
	fanout    *fanout.Fanout
	redis     *store.RedisStore
	keepalive time.Duration
	logger    zerolog.Logger
}

// NewHandler creates a new Handler over the room log and its fanout.
func NewHandler(s store.MessageStore, f *fanout.Fanout, opts Options) *Handler {
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}
	return &Handler{
		store:     s,
		fanout:    f,
		redis:     opts.Redis,
		keepalive: opts.Keepalive,
		logger:    opts.Logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// NotFound renders unknown routes as JSON.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusNotFound, "not found")
}

// MethodNotAllowed renders a known route hit with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusMethodNotAllowed, "method not allowed")
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
