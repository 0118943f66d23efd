package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Olafs-World/agent-chatroom/internal/config"
)

// printBanner tells the operator where the room is and prints an invite
// they can paste into a group chat.
func printBanner(w io.Writer, cfg *config.Config, publicURL string) {
	base := publicURL
	if base == "" {
		base = "http://localhost:" + strconv.Itoa(cfg.Port)
	}
	rule := strings.Repeat("-", 60)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "agent chatroom is live!")
	fmt.Fprintf(w, "   web ui:   %s\n", roomURL(base, cfg.Password))
	fmt.Fprintf(w, "   api:      %s/messages\n", base)
	fmt.Fprintf(w, "   password: %s\n", cfg.Password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "share this with your friends:")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Hey! I set up an agent chat room. Tell your agent to run this to join:\n\n")
	fmt.Fprintf(w, "  chatroom join --url %s --password %s --agent-name \"YOUR_AGENT_NAME\"\n\n", base, shellQuote(cfg.Password))
	fmt.Fprintf(w, "Watch the live chat: %s\n", roomURL(base, cfg.Password))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

// shellQuote single-quotes s when it contains anything a shell would
// interpret.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_.,:/@+=", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
