// Package apiclient talks to the live-session REST backend. It implements the ports consumed by
// the entitlement, streaming, chatsync and viewer packages and maps failures onto apperr kinds.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/apperr"
)

const defaultTimeout = 15 * time.Second

// envelope mirrors pkg/response.Body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string

	carryMu sync.Mutex
	carry   map[uuid.UUID]time.Duration // sub-second watch time not yet reported, per ticket
}

// New creates a client for baseURL (e.g. http://localhost:8080/api/v1). A nil httpClient gets a
// client with a 15s timeout.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
		carry:   make(map[uuid.UUID]time.Duration),
	}
}

// SetToken sets the bearer token sent with every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Authenticated reports whether a bearer token is set.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// scope selects how 404 is classified.
type scope int

const (
	scopeDefault scope = iota
	scopeAccess
)

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, sc scope) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperr.Validation("encode request: " + err.Error())
		}
		reader = bytes.NewReader(buf)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Network(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apperr.Network("read response", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return apperr.Server("decode response", err)
		}
	}

	if resp.StatusCode >= 300 || (len(raw) > 0 && !env.Success) {
		c.logger.Debug("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error))
		return statusError(resp.StatusCode, env.Error, sc)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Server("decode response data", err)
	}
	return nil
}

func statusError(status int, msg string, sc scope) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return apperr.AuthRequired(msg)
	case status == http.StatusForbidden:
		return apperr.AccessDenied(msg)
	case status == http.StatusNotFound && sc == scopeAccess:
		return apperr.AccessDenied(msg)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return apperr.Validation(msg)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return apperr.Network(msg, errors.New(http.StatusText(status)))
	default:
		return apperr.Server(msg, fmt.Errorf("status %d", status))
	}
}
