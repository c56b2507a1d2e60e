// Package api is the typed HTTP client for the RAG backend's REST contract.
//
// Every call is bound to the caller's context and to the client timeout.
// Failures come back as *Error with a Kind (network or server) and a
// single displayable message; nothing is retried here.
package api

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
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abelbrown/ragdeck/internal/otel"
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of any response is read.
const maxBodyBytes = 10 << 20

// Client talks to one backend base URL. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	log     *otel.Logger
	newID   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall per-request timeout. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit throttles outgoing requests client-side.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger emits api.request / api.error events.
func WithLogger(l *otel.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for baseURL (e.g. "http://localhost:8000").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Inf, 1),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// ListProjects calls GET /projects.
func (c *Client) ListProjects(ctx context.Context) (ProjectList, error) {
	var out struct {
		TotalProjects  int       `json:"total_projects"`
		CurrentProject *string   `json:"current_project"`
		Projects       []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects", nil, nil, &out); err != nil {
		return ProjectList{}, err
	}
	list := ProjectList{TotalProjects: out.TotalProjects, Projects: out.Projects}
	if out.CurrentProject != nil {
		list.CurrentProject = *out.CurrentProject
	}
	return list, nil
}

// SwitchProject calls POST /switch.
func (c *Client) SwitchProject(ctx context.Context, path string) (SwitchResponse, error) {
	var out SwitchResponse
	body := map[string]string{"project_path": path}
	err := c.do(ctx, http.MethodPost, "/switch", nil, body, &out)
	return out, err
}

// Stats calls GET /stats. An empty path asks for the backend's current project.
func (c *Client) Stats(ctx context.Context, path string) (ProjectStats, error) {
	var out ProjectStats
	err := c.do(ctx, http.MethodGet, "/stats", pathQuery(path), nil, &out)
	return out, err
}

// Clear calls DELETE /clear for one project. An empty path is rejected so a
// missing argument can never turn into clear-all; use ClearAll for that.
func (c *Client) Clear(ctx context.Context, path string) (StatusResponse, error) {
	if path == "" {
		return StatusResponse{}, Validation("project path is required")
	}
	var out StatusResponse
	err := c.do(ctx, http.MethodDelete, "/clear", pathQuery(path), nil, &out)
	return out, err
}

// ClearAll calls DELETE /clear without a project, dropping every index.
func (c *Client) ClearAll(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodDelete, "/clear", nil, nil, &out)
	return out, err
}

// Index calls POST /index.
func (c *Client) Index(ctx context.Context, req IndexRequest) (IndexResponse, error) {
	var out IndexResponse
	err := c.do(ctx, http.MethodPost, "/index", nil, req, &out)
	return out, err
}

// Query calls POST /query.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	var out QueryResult
	err := c.do(ctx, http.MethodPost, "/query", nil, req, &out)
	return out, err
}

// Models calls GET /models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/models", nil, nil, &out)
	return out, err
}

// ProjectModel calls GET /projects/model and returns the embedding model.
func (c *Client) ProjectModel(ctx context.Context, path string) (string, error) {
	var out struct {
		EmbeddingModel string `json:"embedding_model"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/model", pathQuery(path), nil, &out)
	return out.EmbeddingModel, err
}

// ChangeProjectModel calls POST /projects/model/change.
func (c *Client) ChangeProjectModel(ctx context.Context, path string, req ModelChangeRequest) (ModelChangeResponse, error) {
	out := ModelChangeResponse{}
	err := c.do(ctx, http.MethodPost, "/projects/model/change", pathQuery(path), req, &out)
	return out, err
}

func pathQuery(path string) url.Values {
	if path == "" {
		return nil
	}
	return url.Values{"project_path": {path}}
}

// do performs one request and decodes a 2xx body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path
	rid := c.newID()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.roundTrip(ctx, op, rid, method, path, query, body, out)
	ev := otel.Event{
		Level:     otel.LevelDebug,
		Kind:      otel.KindAPIRequest,
		Comp:      "api",
		RequestID: rid,
		Dur:       time.Since(start),
		Status:    status,
		Msg:       op,
	}
	if err != nil {
		ev.Level = otel.LevelWarn
		ev.Kind = otel.KindAPIError
		ev.Err = err.Error()
		var e *Error
		if errors.As(err, &e) && e.Err != nil {
			ev.Err = e.Err.Error()
		}
	}
	c.log.Emit(ev)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, rid, method, path string, query url.Values, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, networkError(op, fmt.Errorf("rate limiter wait: %w", err))
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, &Error{Kind: KindValidation, Op: op, Message: "could not encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, networkError(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", rid)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, networkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, networkError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, serverError(op, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &Error{
				Kind:    KindServer,
				Op:      op,
				Status:  resp.StatusCode,
				Message: "invalid response from server",
				Err:     err,
			}
		}
	}
	return resp.StatusCode, nil
}
