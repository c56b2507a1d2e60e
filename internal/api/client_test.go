package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/ragdeck/internal/otel"
)

// recorded captures what the fake backend received.
type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
	header http.Header
}

func newServer(t *testing.T, status int, respBody string, got *recorded) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.method = r.Method
			got.path = r.URL.Path
			got.query = r.URL.RawQuery
			got.header = r.Header.Clone()
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				if err := json.Unmarshal(data, &got.body); err != nil {
					t.Errorf("request body is not JSON: %v", err)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListProjects(t *testing.T) {
	var got recorded
	srv := newServer(t, 200, `{
		"total_projects": 2,
		"current_project": "/a",
		"projects": [
			{"path": "/a", "name": "a", "indexed_files": 3, "total_chunks": 10, "is_current": true},
			{"path": "/b", "name": "b", "indexed_files": 1, "total_chunks": 2, "is_current": false}
		]
	}`, &got)

	list, err := New(srv.URL).ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if got.method != http.MethodGet || got.path != "/projects" {
		t.Errorf("request = %s %s, want GET /projects", got.method, got.path)
	}
	if list.CurrentProject != "/a" || len(list.Projects) != 2 {
		t.Errorf("unexpected list: %+v", list)
	}
	if !list.Projects[0].IsCurrent || list.Projects[0].TotalChunks != 10 {
		t.Errorf("unexpected first project: %+v", list.Projects[0])
	}
}

func TestListProjectsNullCurrent(t *testing.T) {
	srv := newServer(t, 200, `{"total_projects": 0, "current_project": null, "projects": []}`, nil)

	list, err := New(srv.URL).ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if list.CurrentProject != "" {
		t.Errorf("CurrentProject = %q, want empty", list.CurrentProject)
	}
}

func TestRequestShapes(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		call      func(c *Client) error
		method    string
		path      string
		query     string
		wantBody  map[string]any
		respBody  string
	}{
		{
			name:     "switch",
			call:     func(c *Client) error { _, err := c.SwitchProject(ctx, "/p"); return err },
			method:   http.MethodPost,
			path:     "/switch",
			wantBody: map[string]any{"project_path": "/p"},
			respBody: `{"status":"switched","current_project":"/p","message":"ok"}`,
		},
		{
			name:     "stats with path",
			call:     func(c *Client) error { _, err := c.Stats(ctx, "/p q"); return err },
			method:   http.MethodGet,
			path:     "/stats",
			query:    "project_path=%2Fp+q",
			respBody: `{"project_root":"/p q"}`,
		},
		{
			name:     "stats without path",
			call:     func(c *Client) error { _, err := c.Stats(ctx, ""); return err },
			method:   http.MethodGet,
			path:     "/stats",
			respBody: `{}`,
		},
		{
			name:     "clear",
			call:     func(c *Client) error { _, err := c.Clear(ctx, "/p"); return err },
			method:   http.MethodDelete,
			path:     "/clear",
			query:    "project_path=%2Fp",
			respBody: `{"status":"cleared","message":"ok"}`,
		},
		{
			name:     "clear all",
			call:     func(c *Client) error { _, err := c.ClearAll(ctx); return err },
			method:   http.MethodDelete,
			path:     "/clear",
			respBody: `{"status":"cleared","message":"All projects cleared"}`,
		},
		{
			name: "plain index",
			call: func(c *Client) error {
				_, err := c.Index(ctx, IndexRequest{ProjectPath: "/p"})
				return err
			},
			method:   http.MethodPost,
			path:     "/index",
			wantBody: map[string]any{"project_path": "/p", "force_reindex": false},
			respBody: `{"status":"indexing_started"}`,
		},
		{
			name: "forced index with model",
			call: func(c *Client) error {
				_, err := c.Index(ctx, IndexRequest{ProjectPath: "/p", Model: "m", ForceReindex: true, FileExtensions: []string{".go"}})
				return err
			},
			method: http.MethodPost,
			path:   "/index",
			wantBody: map[string]any{
				"project_path":    "/p",
				"force_reindex":   true,
				"model":           "m",
				"file_extensions": []any{".go"},
			},
			respBody: `{"status":"indexing_started"}`,
		},
		{
			name: "query",
			call: func(c *Client) error {
				_, err := c.Query(ctx, QueryRequest{Query: "how", MaxResults: 5, IncludeMetadata: true})
				return err
			},
			method:   http.MethodPost,
			path:     "/query",
			wantBody: map[string]any{"query": "how", "max_results": float64(5), "include_metadata": true},
			respBody: `{"optimized_prompt":"p","context_chunks":1,"token_count":2}`,
		},
		{
			name:     "models",
			call:     func(c *Client) error { _, err := c.Models(ctx); return err },
			method:   http.MethodGet,
			path:     "/models",
			respBody: `["a","b"]`,
		},
		{
			name:     "project model",
			call:     func(c *Client) error { _, err := c.ProjectModel(ctx, "/p"); return err },
			method:   http.MethodGet,
			path:     "/projects/model",
			query:    "project_path=%2Fp",
			respBody: `{"embedding_model":"a"}`,
		},
		{
			name: "change model",
			call: func(c *Client) error {
				_, err := c.ChangeProjectModel(ctx, "/p", ModelChangeRequest{Model: "b", AutoReindex: true})
				return err
			},
			method:   http.MethodPost,
			path:     "/projects/model/change",
			query:    "project_path=%2Fp",
			wantBody: map[string]any{"model": "b", "auto_reindex": true},
			respBody: `{"status":"ok"}`,
		},
		{
			name:     "health",
			call:     func(c *Client) error { _, err := c.Health(ctx); return err },
			method:   http.MethodGet,
			path:     "/health",
			respBody: `{"status":"healthy","version":"2.0.0"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got recorded
			srv := newServer(t, 200, tt.respBody, &got)
			if err := tt.call(New(srv.URL + "/")); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if got.method != tt.method || got.path != tt.path {
				t.Errorf("request = %s %s, want %s %s", got.method, got.path, tt.method, tt.path)
			}
			if got.query != tt.query {
				t.Errorf("query = %q, want %q", got.query, tt.query)
			}
			if ct := got.header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got.header.Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header missing")
			}
			if tt.wantBody != nil {
				wantJSON, _ := json.Marshal(tt.wantBody)
				gotJSON, _ := json.Marshal(got.body)
				if !bytes.Equal(wantJSON, gotJSON) {
					t.Errorf("body = %s, want %s", gotJSON, wantJSON)
				}
			}
		})
	}
}

func TestDecodedResponses(t *testing.T) {
	srv := newServer(t, 200, `{
		"optimized_prompt": "use foo()",
		"context_chunks": 3,
		"token_count": 120,
		"metadata": {"project_root": "/p", "queried_project": "/p", "indexed_files": 4, "total_chunks": 9, "embedding_model": "m", "available_projects": ["/p"]}
	}`, nil)

	res, err := New(srv.URL).Query(context.Background(), QueryRequest{Query: "foo"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.OptimizedPrompt != "use foo()" || res.ContextChunks != 3 || res.TokenCount != 120 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Metadata == nil || res.Metadata.EmbeddingModel != "m" || len(res.Metadata.AvailableProjects) != 1 {
		t.Errorf("unexpected metadata: %+v", res.Metadata)
	}
}

func TestServerErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 404, `{"detail":"project not found"}`, "project not found"},
		{"detail list", 422, `{"detail":[{"loc":["body","query"],"msg":"field required"},{"msg":"too short"}]}`, "field required; too short"},
		{"message field", 500, `{"message":"disk full"}`, "disk full"},
		{"detail wins over message", 400, `{"detail":"bad path","message":"ignored"}`, "bad path"},
		{"non-JSON body", 502, `<html>bad gateway</html>`, "Bad Gateway"},
		{"empty body", 500, ``, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)
			_, err := New(srv.URL).SwitchProject(context.Background(), "/x")
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsServer(err) {
				t.Errorf("kind = %v, want server", KindOf(err))
			}
			if err.Error() != tt.want {
				t.Errorf("message = %q, want %q", err.Error(), tt.want)
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
				t.Errorf("status not carried: %+v", apiErr)
			}
		})
	}
}

func TestInvalidJSONIsServerError(t *testing.T) {
	srv := newServer(t, 200, `{not json`, nil)

	_, err := New(srv.URL).Health(context.Background())
	if !IsServer(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	if Message(err) != "invalid response from server" {
		t.Errorf("Message = %q", Message(err))
	}
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).ListProjects(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if err.Error() != MsgNetwork {
		t.Errorf("message = %q, want %q", err.Error(), MsgNetwork)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Models(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", errors.Unwrap(err))
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout not honored")
	}
}

func TestClearRequiresPath(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Clear(context.Background(), "")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}

func TestRateLimitWaitHonorsContext(t *testing.T) {
	srv := newServer(t, 200, `[]`, nil)
	c := New(srv.URL, WithRateLimit(0.001, 1))

	if _, err := c.Models(context.Background()); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Models(ctx)
	if !IsNetwork(err) {
		t.Fatalf("expected network error from limiter, got %v", err)
	}
}

func TestRequestEventsEmitted(t *testing.T) {
	srv := newServer(t, 404, `{"detail":"nope"}`, nil)
	ring := otel.NewRingBuffer(8)
	log := otel.NewNullLogger()
	log.SetRingBuffer(ring)

	c := New(srv.URL, WithLogger(log))
	_, _ = c.Stats(context.Background(), "/p")
	log.Close()

	events := ring.Snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != otel.KindAPIError || ev.Status != 404 || ev.Msg != "GET /stats" || ev.RequestID == "" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !strings.Contains(ev.Err, "nope") {
		t.Errorf("event err = %q", ev.Err)
	}
}
