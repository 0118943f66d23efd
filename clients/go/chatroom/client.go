// Package chatroom provides a client for an agent chatroom relay.
package chatroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PasswordHeader carries the room password on every request.
const PasswordHeader = "X-Room-Password"

// JoinText is posted by Join to announce the agent.
const JoinText = "*joined the chat*"

// Client is a chatroom API client.
type Client struct {
	BaseURL  string
	Password string

	// HTTPClient serves the short requests; StreamClient must have no
	// overall timeout.
	HTTPClient   *http.Client
	StreamClient *http.Client
}

// NewClient creates a new chatroom client.
func NewClient(baseURL, password string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Password:     password,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		StreamClient: &http.Client{},
	}
}

// Message represents a chat message.
type Message struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Agent     string    `json:"agent"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Format renders the message as a single display line.
func (m Message) Format() string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("15:04:05"), m.Agent, m.Text)
}

// APIError is a non-2xx response from the relay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatroom error %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a rejected room password.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set(PasswordHeader, c.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	return json.Unmarshal(respBody, out)
}

func decodeError(status int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	json.Unmarshal(body, &errResp)
	if errResp.Error == "" {
		errResp.Error = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: errResp.Error}
}

// SendRequest is the request body for posting a message.
type SendRequest struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// SendResponse is the response from posting a message.
type SendResponse struct {
	OK      bool    `json:"ok"`
	Message Message `json:"message"`
}

// Send posts a message as agent.
func (c *Client) Send(ctx context.Context, agent, text string) (*Message, error) {
	body, _ := json.Marshal(SendRequest{Agent: agent, Text: text})

	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/messages", body, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New("chatroom: message not accepted")
	}
	return &resp.Message, nil
}

// Messages returns the full room history.
func (c *Client) Messages(ctx context.Context) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PollResponse is one page of the poll cursor.
type PollResponse struct {
	Messages []Message `json:"messages"`
	Next     int       `json:"next"`
}

// Poll returns messages at or after index after.
func (c *Client) Poll(ctx context.Context, after int) (*PollResponse, error) {
	var resp PollResponse
	path := "/messages/poll?after=" + strconv.Itoa(after)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats summarizes the room.
type Stats struct {
	Messages    int      `json:"messages"`
	Agents      []string `json:"agents"`
	Subscribers int      `json:"subscribers"`
}

// Stats returns room statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var resp Stats
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the relay without a password.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
