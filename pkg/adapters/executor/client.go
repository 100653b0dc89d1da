// Package executor talks to the remote Operation Executor that performs
// pixel-level transforms.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// SessionHeader carries the session id to the executor.
const SessionHeader = "X-Session-ID"

// maxErrorBody bounds how much of a failed response is kept for passthrough.
const maxErrorBody = 64 << 10

// Error is a non-201 executor response other than the mapped 400 and 404.
// Transports relay StatusCode and Body to their caller unchanged.
type Error struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor returned status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Client implements ports.Executor over HTTP:
//
//	PUT {baseURL}/transform?_uuid=<input>&op=<name>   body {"params": {...}}
//	201 {"output_uuid": "..."}
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the executor at baseURL (e.g. "http://localhost:5002").
// Deadlines come from the caller's context.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.Executor = (*Client)(nil)

type transformRequest struct {
	Params map[string]any `json:"params"`
}

type transformResponse struct {
	OutputUUID string `json:"output_uuid"`
}

// Execute sends one transform and returns the executor's output version id.
func (c *Client) Execute(ctx context.Context, req ports.ExecRequest) (domain.VersionID, error) {
	params := req.Operation.Params
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(transformRequest{Params: params})
	if err != nil {
		return "", fmt.Errorf("%w: marshal params: %v", domain.ErrInvalidParameters, err)
	}

	q := url.Values{}
	q.Set("_uuid", req.Input.String())
	q.Set("op", req.Operation.Name)
	target := c.baseURL + "/transform?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", domain.ErrExecutorUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.SessionID != "" {
		httpReq.Header.Set(SessionHeader, req.SessionID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("executor unreachable", "op", req.Operation.Name, "version_id", req.Input, "err", err)
		return "", fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("executor responded",
		"op", req.Operation.Name,
		"version_id", req.Input,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusBadRequest:
		msg := readMessage(resp.Body)
		return "", fmt.Errorf("%w: %s: %s", domain.ErrUnsupportedOperation, req.Operation.Name, msg)
	case http.StatusNotFound:
		msg := readMessage(resp.Body)
		return "", fmt.Errorf("%w: %s: %s", domain.ErrInputNotFound, req.Input, msg)
	default:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, ctx.Err())
		}
		return "", &Error{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
	}

	var out transformResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// A deadline hit while reading the body is still an unavailable executor.
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, err)
		}
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrInvalidExecutorResponse, err)
	}

	id := domain.VersionID(out.OutputUUID)
	if id == "" {
		return "", fmt.Errorf("%w: output_uuid missing", domain.ErrInvalidExecutorResponse)
	}
	if !id.Valid() {
		return "", fmt.Errorf("%w: malformed output_uuid %q", domain.ErrInvalidExecutorResponse, out.OutputUUID)
	}
	return id, nil
}

func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(data))
}

// Health probes the executor root. Any HTTP answer counts as reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, err)
	}
	resp.Body.Close()
	return nil
}
