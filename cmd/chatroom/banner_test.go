package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Olafs-World/agent-chatroom/internal/config"
)

func TestPrintBanner(t *testing.T) {
	cfg := &config.Config{Port: 8765, Password: "s3cret"}

	var buf bytes.Buffer
	printBanner(&buf, cfg, "")
	out := buf.String()
	for _, want := range []string{
		"http://localhost:8765/?password=s3cret",
		"http://localhost:8765/messages",
		"--password s3cret",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printBanner(&buf, cfg, "https://brave-otter-7.trycloudflare.com")
	if !strings.Contains(buf.String(), "https://brave-otter-7.trycloudflare.com/?password=s3cret") {
		t.Errorf("banner does not use the public URL:\n%s", buf.String())
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"plain":      "plain",
		"with space": "'with space'",
		"it's":       `'it'\''s'`,
		"":           "''",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoomURLEscapesPassword(t *testing.T) {
	if got := roomURL("http://x", "a&b c"); got != "http://x/?password=a%26b+c" {
		t.Fatalf("unexpected url %q", got)
	}
}
