package server

import (
	"log"
	"strings"

	"github.com/rs/zerolog"
)

// errorLogWriter routes net/http's internal logging (TLS handshake noise,
// accept errors) into zerolog.
type errorLogWriter struct {
	logger zerolog.Logger
}

func (w errorLogWriter) Write(p []byte) (int, error) {
	w.logger.Warn().Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

func newErrorLog(logger zerolog.Logger) *log.Logger {
	return log.New(errorLogWriter{logger: logger}, "", 0)
}
