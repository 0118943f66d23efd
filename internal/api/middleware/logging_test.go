package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			t.Fatalf("bad log line %q: %v", raw, err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/messages", http.StatusOK, "info"},
		{"/messages", http.StatusBadRequest, "warn"},
		{"/messages", http.StatusUnauthorized, "warn"},
		{"/messages", http.StatusInternalServerError, "error"},
		{"/health", http.StatusOK, "debug"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		lines := logLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("%s %d: expected 1 line, got %d", tt.path, tt.status, len(lines))
		}
		if lines[0]["level"] != tt.level {
			t.Errorf("%s %d: expected level %s, got %v", tt.path, tt.status, tt.level, lines[0]["level"])
		}
		if lines[0]["message"] != "request completed" {
			t.Errorf("unexpected message %v", lines[0]["message"])
		}
	}
}

func TestLoggerStreamLifetime(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(": connected\n\n"))
		time.Sleep(20 * time.Millisecond)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, StreamPath, nil))

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected open and close lines, got %d", len(lines))
	}
	if lines[0]["message"] != "stream opened" {
		t.Errorf("expected stream opened first, got %v", lines[0]["message"])
	}
	closed := lines[1]
	if closed["message"] != "stream closed" {
		t.Fatalf("expected stream closed, got %v", closed["message"])
	}
	d, ok := closed["connected_for"].(float64)
	if !ok || d < 20 {
		t.Errorf("expected connected_for >= 20ms, got %v", closed["connected_for"])
	}
	if _, ok := closed["latency"]; ok {
		t.Error("stream close should not report latency")
	}
}

func TestLoggerRejectedStreamIsARequest(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, StreamPath, nil))

	lines := logLines(t, &buf)
	last := lines[len(lines)-1]
	if last["message"] != "request completed" || last["level"] != "warn" {
		t.Errorf("unexpected entry %v", last)
	}
}

func TestLoggerClientIP(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("CF-Connecting-IP", "1.2.3.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.RemoteAddr = "203.0.113.7:4444"
	req.Header.Set("CF-Connecting-IP", "1.2.3.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["client_ip"] != "1.2.3.4" {
		t.Errorf("tunneled request: got %v", lines[0]["client_ip"])
	}
	if lines[1]["client_ip"] != "203.0.113.7" {
		t.Errorf("direct request: got %v", lines[1]["client_ip"])
	}
	if lines[0]["status"] != float64(200) {
		t.Errorf("handler that writes nothing should log 200, got %v", lines[0]["status"])
	}
}
