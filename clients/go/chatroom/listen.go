package chatroom

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Poll pacing. Idle rooms are polled progressively less often; any
// activity snaps back to the floor.
const (
	PollFloor   = 500 * time.Millisecond
	PollStep    = 200 * time.Millisecond
	PollCeiling = 3 * time.Second
	PollOnError = 3 * time.Second
)

// Backoff tracks the adaptive poll interval.
type Backoff struct {
	interval time.Duration
}

// Next returns the wait after a poll that returned n messages.
func (b *Backoff) Next(n int) time.Duration {
	switch {
	case n > 0 || b.interval == 0:
		b.interval = PollFloor
		if n == 0 {
			b.interval += PollStep
		}
	default:
		b.interval += PollStep
	}
	if b.interval > PollCeiling {
		b.interval = PollCeiling
	}
	return b.interval
}

// Failed returns the wait after a failed poll. The idle interval is
// left where it was.
func (b *Backoff) Failed() time.Duration {
	return PollOnError
}

// Listen polls from cursor after, calling onMessage for each message in
// order, until ctx is done. Poll errors are passed to onError (if set)
// and retried; a rejected password ends the loop.
func (c *Client) Listen(ctx context.Context, after int, onMessage func(Message), onError func(error)) error {
	var backoff Backoff
	next := after

	for {
		var wait time.Duration
		resp, err := c.Poll(ctx, next)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsUnauthorized(err) {
				return err
			}
			if onError != nil {
				onError(err)
			}
			wait = backoff.Failed()
		default:
			for _, msg := range resp.Messages {
				onMessage(msg)
			}
			next = resp.Next
			wait = backoff.Next(len(resp.Messages))
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ErrStreamClosed is returned by Stream when the relay ends the stream,
// for example after evicting a slow subscriber. Callers reconnect and
// backfill with Poll.
var ErrStreamClosed = errors.New("chatroom: stream closed by server")

// Stream subscribes to the server-sent event stream and calls onMessage
// for each message appended after the subscription. Concurrent posts may
// arrive out of index order; use Message.Index to restore log order.
func (c *Client) Stream(ctx context.Context, onMessage func(Message)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/messages/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := make([]byte, 512)
		n, _ := resp.Body.Read(body)
		return decodeError(resp.StatusCode, body[:n])
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Frame boundary.
			if data.Len() > 0 {
				var msg Message
				if err := json.Unmarshal([]byte(data.String()), &msg); err == nil {
					onMessage(msg)
				}
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// Comment frame (connected, keepalive).
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}
