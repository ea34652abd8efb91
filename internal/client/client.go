// Package client talks to a running attention server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/server"
)

const httpTimeout = 30 * time.Second

// StatusError is a response with a 4xx or 5xx status.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Client talks to the attention server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for the server at serverURL.
func New(serverURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

func (c *Client) Status(ctx context.Context) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Control posts one of start, stop, pause, resume or reset.
func (c *Client) Control(ctx context.Context, action string) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/"+action, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WalkResult reports a walk: Ran when the server stepped the cycles itself,
// Queued when its loop will run them.
type WalkResult struct {
	Ran    int                   `json:"ran"`
	Queued int                   `json:"queued"`
	Status server.StatusResponse `json:"status"`
}

func (c *Client) Walk(ctx context.Context, cycles int) (*WalkResult, error) {
	var res WalkResult
	if err := c.do(ctx, http.MethodPost, "/api/walk", map[string]int{"cycles": cycles}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// InputResult reports what the server did with submitted text.
type InputResult struct {
	Queued   int      `json:"queued"`
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// Say submits perception text, one task per line.
func (c *Client) Say(ctx context.Context, text string) (*InputResult, error) {
	var res InputResult
	if err := c.do(ctx, http.MethodPost, "/api/input", map[string]string{"text": text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Output returns up to limit recent output lines.
func (c *Client) Output(ctx context.Context, limit int) ([]string, error) {
	var res struct {
		Lines []string `json:"lines"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/output?limit="+strconv.Itoa(limit), nil, &res); err != nil {
		return nil, err
	}
	return res.Lines, nil
}

func (c *Client) Concepts(ctx context.Context, limit int) ([]engine.ConceptSummary, error) {
	var res struct {
		Concepts []engine.ConceptSummary `json:"concepts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/concepts?limit="+strconv.Itoa(limit), nil, &res); err != nil {
		return nil, err
	}
	return res.Concepts, nil
}

// Concept returns one concept, or nil, nil when the server does not know it.
func (c *Client) Concept(ctx context.Context, term string) (*engine.ConceptDetail, error) {
	var d engine.ConceptDetail
	err := c.do(ctx, http.MethodGet, "/api/concepts/"+url.PathEscape(term), nil, &d)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) Params(ctx context.Context) (*config.Params, error) {
	var p config.Params
	if err := c.do(ctx, http.MethodGet, "/api/params", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetParams sends a full or partial parameter document.
func (c *Client) SetParams(ctx context.Context, patch map[string]any) (*config.Params, error) {
	var p config.Params
	if err := c.do(ctx, http.MethodPut, "/api/params", patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
