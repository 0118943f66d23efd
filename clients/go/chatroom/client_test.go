package chatroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeRoom is a minimal relay used to exercise the client.
type fakeRoom struct {
	mu       sync.Mutex
	password string
	messages []Message
	polls    int
}

func (f *fakeRoom) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(PasswordHeader) != f.password {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid password"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/messages":
		var req SendRequest
		json.NewDecoder(r.Body).Decode(&req)
		msg := Message{Index: len(f.messages), Agent: req.Agent, Text: req.Text, Timestamp: time.Now().UTC()}
		f.messages = append(f.messages, msg)
		json.NewEncoder(w).Encode(SendResponse{OK: true, Message: msg})
	case r.URL.Path == "/messages":
		json.NewEncoder(w).Encode(map[string]interface{}{"messages": f.messages})
	case r.URL.Path == "/messages/poll":
		f.polls++
		after, _ := strconv.Atoi(r.URL.Query().Get("after"))
		out := []Message{}
		if after < len(f.messages) {
			out = append(out, f.messages[after:]...)
		}
		json.NewEncoder(w).Encode(PollResponse{Messages: out, Next: len(f.messages)})
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}
}

func TestSendAndMessages(t *testing.T) {
	room := &fakeRoom{password: "pw"}
	srv := httptest.NewServer(room)
	defer srv.Close()

	c := NewClient(srv.URL+"/", "pw")
	ctx := context.Background()

	msg, err := c.Send(ctx, "bot1", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Agent != "bot1" || msg.Text != "hi" {
		t.Fatalf("unexpected echo %+v", msg)
	}

	msgs, err := c.Messages(ctx)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("unexpected history %+v", msgs)
	}

	resp, err := c.Poll(ctx, 1)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(resp.Messages) != 0 || resp.Next != 1 {
		t.Fatalf("unexpected poll %+v", resp)
	}
}

func TestWrongPassword(t *testing.T) {
	srv := httptest.NewServer(&fakeRoom{password: "pw"})
	defer srv.Close()

	c := NewClient(srv.URL, "nope")
	_, err := c.Send(context.Background(), "bot1", "hi")
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "invalid password" {
		t.Fatalf("unexpected error %v", err)
	}

	// Listen gives up instead of retrying forever.
	err = c.Listen(context.Background(), 0, func(Message) {}, nil)
	if !IsUnauthorized(err) {
		t.Fatalf("expected listen to stop on 401, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	var b Backoff
	if got := b.Next(0); got != 700*time.Millisecond {
		t.Fatalf("first empty poll: %v", got)
	}
	if got := b.Next(0); got != 900*time.Millisecond {
		t.Fatalf("second empty poll: %v", got)
	}
	for i := 0; i < 20; i++ {
		b.Next(0)
	}
	if got := b.Next(0); got != PollCeiling {
		t.Fatalf("expected ceiling, got %v", got)
	}
	if got := b.Failed(); got != PollOnError {
		t.Fatalf("expected error wait, got %v", got)
	}
	if got := b.Next(3); got != PollFloor {
		t.Fatalf("activity should reset to floor, got %v", got)
	}
}

func TestListenDeliversInOrder(t *testing.T) {
	room := &fakeRoom{password: "pw"}
	for i := 0; i < 3; i++ {
		room.messages = append(room.messages, Message{Index: i, Agent: "bot", Text: fmt.Sprint(i)})
	}
	srv := httptest.NewServer(room)
	defer srv.Close()

	c := NewClient(srv.URL, "pw")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int
	done := make(chan error, 1)
	go func() {
		done <- c.Listen(ctx, 1, func(m Message) {
			got = append(got, m.Index)
			if len(got) == 2 {
				cancel()
			}
		}, nil)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not deliver")
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected delivery %v", got)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(PasswordHeader) != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid password"}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, `data: {"index":0,"agent":"bot1","text":"hi"}`+"\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, `data: {"index":1,"agent":"bot2","text":"yo"}`+"\n\n")
	}))
	defer srv.Close()

	var got []Message
	err := NewClient(srv.URL, "pw").Stream(context.Background(), func(m Message) {
		got = append(got, m)
	})
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if len(got) != 2 || got[0].Agent != "bot1" || got[1].Text != "yo" {
		t.Fatalf("unexpected frames %+v", got)
	}

	err = NewClient(srv.URL, "bad").Stream(context.Background(), func(Message) {})
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
