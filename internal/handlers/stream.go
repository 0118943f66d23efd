package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

var (
	connectedFrame = []byte(": connected\n\n")
	keepaliveFrame = []byte(": keepalive\n\n")
)

// Stream handles GET /messages/stream. Only messages appended after the
// subscription are delivered; history comes from /messages or the poll
// cursor.
//
// Delivery happens after the append has released the log, so two
// concurrent posts may arrive in either order, and a subscriber that
// attaches while a post is in flight may still receive it. Consumers
// that need log order sort or deduplicate by the message index.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	sub, err := h.fanout.Subscribe()
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer h.fanout.Unsubscribe(sub)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-transform")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.logger.With().Str("subscriber", sub.ID).Logger()

	send := func(frame []byte) bool {
		if _, err := w.Write(frame); err != nil {
			log.Debug().Err(err).Msg("stream write failed")
			return false
		}
		if err := rc.Flush(); err != nil {
			log.Debug().Err(err).Msg("stream flush failed")
			return false
		}
		return true
	}

	if !send(connectedFrame) {
		return
	}
	log.Debug().Msg("stream attached")

	timer := time.NewTimer(h.keepalive)
	defer timer.Stop()

	for {
		select {
		case msg := <-sub.C():
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("failed to encode message")
				continue
			}
			frame := make([]byte, 0, len(data)+8)
			frame = append(frame, "data: "...)
			frame = append(frame, data...)
			frame = append(frame, '\n', '\n')
			if !send(frame) {
				return
			}
		case <-timer.C:
			if !send(keepaliveFrame) {
				return
			}
		case <-sub.Done():
			log.Debug().Msg("stream evicted")
			return
		case <-r.Context().Done():
			log.Debug().Msg("stream client gone")
			return
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.keepalive)
	}
}
