package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
)

const (
	// PasswordHeader carries the room secret. It takes precedence over
	// the query parameter.
	PasswordHeader = "X-Room-Password"
	// PasswordParam is the query-string fallback used by browsers and
	// EventSource, which cannot set headers.
	PasswordParam = "password"
)

// Gate checks the shared room secret on every protected request.
type Gate struct {
	digest [sha256.Size]byte
	logger zerolog.Logger
}

// NewGate creates a gate for secret. Only the digest is retained.
func NewGate(secret string, logger zerolog.Logger) *Gate {
	return &Gate{
		digest: sha256.Sum256([]byte(secret)),
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Credential extracts the caller's credential from the header, falling
// back to the query string.
func Credential(r *http.Request) string {
	if pw := r.Header.Get(PasswordHeader); pw != "" {
		return pw
	}
	return r.URL.Query().Get(PasswordParam)
}

// Authorize reports whether r carries the room secret. Both sides are
// hashed to a fixed length first, so the comparison time depends on
// neither the secret's length nor a shared prefix.
func (g *Gate) Authorize(r *http.Request) bool {
	return g.Check(Credential(r))
}

// Check compares a raw credential against the room secret.
func (g *Gate) Check(credential string) bool {
	provided := sha256.Sum256([]byte(credential))
	return subtle.ConstantTimeCompare(provided[:], g.digest[:]) == 1
}

// Require rejects unauthorized requests with 401 before next is reached.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(r) {
			metrics.AuthFailures.Inc()
			g.logger.Warn().
				Str("type", "security").
				Str("event", "invalid_password").
				Str("ip", RealIP(r)).
				Str("path", r.URL.Path).
				Msg("rejected request with invalid room password")
			jsonError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
