package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger logs one line per request. A stream is logged when it ends, with
// how long the listener stayed attached. Health checks log at debug so a
// monitor polling the room does not drown out agent traffic.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			if r.URL.Path == StreamPath {
				logger.Debug().
					Str("client_ip", RealIP(r)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("stream opened")
			}

			defer func() {
				status := ww.Status()
				if status == 0 {
					// Handler wrote nothing; net/http sends 200.
					status = http.StatusOK
				}

				ev := requestEvent(logger, r.URL.Path, status).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Str("client_ip", RealIP(r)).
					Str("request_id", middleware.GetReqID(r.Context()))

				if r.URL.Path == StreamPath && status == http.StatusOK {
					ev.Dur("connected_for", time.Since(start)).Msg("stream closed")
					return
				}
				ev.Dur("latency", time.Since(start)).Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func requestEvent(logger zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	case path == "/health":
		return logger.Debug()
	default:
		return logger.Info()
	}
}
