package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/fix"
)

// Client talks to a running daemon's control API.
type Client struct {
	BaseURL string
	Token   string

	// HTTPClient overrides the default client when set.
	HTTPClient *http.Client
}

// NewClient creates a client for the daemon at addr (host:port or URL).
func NewClient(addr, token string) *Client {
	base := strings.TrimSpace(addr)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{BaseURL: strings.TrimRight(base, "/"), Token: token}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := strings.TrimSpace(c.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Reply sends a gate reply for the session.
func (c *Client) Reply(ctx context.Context, sessionID, kind, text string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/reply", ReplyRequest{
		SessionID: sessionID,
		Kind:      kind,
		Text:      text,
	}, nil)
}

// Status fetches daemon health.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fix asks the daemon to start the remediation pipeline for a session.
func (c *Client) Fix(ctx context.Context, sessionID string) (*fix.State, error) {
	var out struct {
		State *fix.State `json:"state"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/fix", FixRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return out.State, nil
}
