// Package backendtest is an in-memory fake of the RAG backend's REST API.
//
// It mirrors the FastAPI backend's responses closely enough for the
// session, TUI and CLI to run against it: indexing "completes" as soon as
// the request is accepted, with counts derived from the requested
// extensions. Tests can inject failures, delays and holds per route.
package backendtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultModels are the embedding models the fake offers.
var DefaultModels = []string{
	"all-MiniLM-L6-v2",
	"paraphrase-multilingual-MiniLM-L12-v2",
	"paraphrase-multilingual-mpnet-base-v2",
	"intfloat/multilingual-e5-large",
}

// DefaultModel is assigned when an index request names none.
const DefaultModel = "paraphrase-multilingual-MiniLM-L12-v2"

// DefaultExtensions mirrors the backend's default indexed file types.
var DefaultExtensions = []string{".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".cpp", ".c", ".h", ".cs", ".go", ".rs", ".md"}

// Route names used by Fail, Hold, SetDelay and Calls.
const (
	RouteHealth       = "GET /health"
	RouteProjects     = "GET /projects"
	RouteSwitch       = "POST /switch"
	RouteStats        = "GET /stats"
	RouteClear        = "DELETE /clear"
	RouteIndex        = "POST /index"
	RouteQuery        = "POST /query"
	RouteModels       = "GET /models"
	RouteProjectModel = "GET /projects/model"
	RouteModelChange  = "POST /projects/model/change"
)

type project struct {
	path   string
	files  int
	chunks int
	model  string
}

type failure struct {
	status int
	detail string
}

// Backend holds the fake's state. Safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	order    []string // project paths in index order
	projects map[string]*project
	current  string
	models   []string

	failures map[string]failure
	delays   map[string]time.Duration
	holds    map[string]chan struct{}
	calls    map[string]int
	bodies   map[string][]json.RawMessage
}

// New returns an empty backend offering DefaultModels.
func New() *Backend {
	return &Backend{
		projects: make(map[string]*project),
		models:   append([]string(nil), DefaultModels...),
		failures: make(map[string]failure),
		delays:   make(map[string]time.Duration),
		holds:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
		bodies:   make(map[string][]json.RawMessage),
	}
}

// NewServer starts an httptest server for a new Backend. Close the server when done.
func NewServer() (*Backend, *httptest.Server) {
	b := New()
	return b, httptest.NewServer(b.Handler(false))
}

// Handler returns the chi router. verbose adds request logging.
func (b *Backend) Handler(verbose bool) http.Handler {
	r := chi.NewRouter()
	if verbose {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(b.intercept)

	r.Get("/health", b.health)
	r.Get("/projects", b.listProjects)
	r.Post("/switch", b.switchProject)
	r.Get("/stats", b.stats)
	r.Delete("/clear", b.clear)
	r.Post("/index", b.index)
	r.Post("/query", b.query)
	r.Get("/models", b.listModels)
	r.Get("/projects/model", b.projectModel)
	r.Post("/projects/model/change", b.changeModel)
	return r
}

// AddProject seeds an indexed project. The first one becomes current.
func (b *Backend) AddProject(p, model string, files, chunks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(p, model, files, chunks)
}

// Fail makes route answer status with {"detail": detail} until Recover.
func (b *Backend) Fail(route string, status int, detail string) {
	b.mu.Lock()
	b.failures[route] = failure{status: status, detail: detail}
	b.mu.Unlock()
}

// Recover clears an injected failure.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	delete(b.failures, route)
	b.mu.Unlock()
}

// SetDelay delays every response on route by d.
func (b *Backend) SetDelay(route string, d time.Duration) {
	b.mu.Lock()
	b.delays[route] = d
	b.mu.Unlock()
}

// Hold blocks requests on route until the returned release func is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[route] == ch {
				delete(b.holds, route)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests route has received.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Bodies returns the raw JSON bodies received on route, oldest first.
func (b *Backend) Bodies(route string) []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]json.RawMessage(nil), b.bodies[route]...)
}

// Current returns the backend's current project.
func (b *Backend) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Model returns a project's embedding model.
func (b *Backend) Model(p string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pr, ok := b.projects[p]; ok {
		return pr.model
	}
	return ""
}

// intercept counts calls, records bodies and applies holds, delays and failures.
func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
		}

		b.mu.Lock()
		b.calls[route]++
		if len(bytes.TrimSpace(body)) > 0 {
			b.bodies[route] = append(b.bodies[route], json.RawMessage(body))
		}
		hold := b.holds[route]
		delay := b.delays[route]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		b.mu.Lock()
		f, failing := b.failures[route]
		b.mu.Unlock()
		if failing {
			writeDetail(w, f.status, f.detail)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) health(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"version":          "2.0.0",
		"indexed_projects": len(b.order),
		"current_project":  nullable(b.current),
		"projects":         append([]string{}, b.order...),
		"vector_db_status": "healthy",
	})
}

func (b *Backend) listProjects(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	projects := make([]map[string]any, 0, len(b.order))
	for _, p := range b.order {
		pr := b.projects[p]
		projects = append(projects, map[string]any{
			"path":            pr.path,
			"name":            path.Base(pr.path),
			"indexed_files":   pr.files,
			"total_chunks":    pr.chunks,
			"embedding_model": pr.model,
			"is_current":      pr.path == b.current,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_projects":  len(projects),
		"current_project": nullable(b.current),
		"projects":        projects,
	})
}

func (b *Backend) switchProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectPath string `json:"project_path"`
	}
	if !decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.projects[req.ProjectPath]; !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Project not indexed: %s. Index it first with POST /index", req.ProjectPath))
		return
	}
	b.current = req.ProjectPath
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "switched",
		"current_project": b.current,
		"message":         "Switched to project: " + req.ProjectPath,
	})
}

func (b *Backend) stats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pr, status, detail := b.targetLocked(r.URL.Query().Get("project_path"))
	if pr == nil {
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_root":    pr.path,
		"indexed_files":   pr.files,
		"total_chunks":    pr.chunks,
		"vector_db_size":  fmt.Sprintf("%.2f MB", float64(pr.chunks)*1.5/1024),
		"embedding_model": pr.model,
		"is_current":      pr.path == b.current,
		"all_projects":    append([]string{}, b.order...),
	})
}

func (b *Backend) clear(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_index", "message": "No index to clear"})
		return
	}
	p := r.URL.Query().Get("project_path")
	if p == "" {
		b.order = nil
		b.projects = make(map[string]*project)
		b.current = ""
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "message": "All projects cleared"})
		return
	}
	if _, ok := b.projects[p]; !ok {
		writeDetail(w, http.StatusNotFound, "Project not found: "+p)
		return
	}
	delete(b.projects, p)
	kept := b.order[:0]
	for _, q := range b.order {
		if q != p {
			kept = append(kept, q)
		}
	}
	b.order = kept
	if b.current == p {
		b.current = ""
		if len(b.order) > 0 {
			b.current = b.order[0]
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "message": "Project cleared: " + p})
}

func (b *Backend) index(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectPath    string   `json:"project_path"`
		FileExtensions []string `json:"file_extensions"`
		Model          string   `json:"model"`
		ForceReindex   bool     `json:"force_reindex"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectPath) == "" {
		writeValidation(w, "project_path", "Field required")
		return
	}
	if !strings.HasPrefix(req.ProjectPath, "/") {
		writeDetail(w, http.StatusBadRequest, "Invalid path: "+req.ProjectPath)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.Model != "" && !b.knownModelLocked(req.Model) {
		writeDetail(w, http.StatusBadRequest, "Unsupported model: "+req.Model)
		return
	}

	exts := req.FileExtensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	model := req.Model
	if prev, ok := b.projects[req.ProjectPath]; ok && model == "" {
		model = prev.model
	}
	if model == "" {
		model = DefaultModel
	}
	files := 4 * len(exts)
	chunks := 6 * files
	if prev, ok := b.projects[req.ProjectPath]; ok && !req.ForceReindex {
		// incremental: existing entries are kept
		if prev.files > files {
			files, chunks = prev.files, prev.chunks
		}
	}
	b.putLocked(req.ProjectPath, model, files, chunks)
	b.current = req.ProjectPath

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "indexing_started",
		"message":         "Project indexing started: " + req.ProjectPath,
		"project_path":    req.ProjectPath,
		"file_extensions": req.FileExtensions,
		"embedding_model": model,
		"total_projects":  len(b.order),
	})
}

func (b *Backend) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query           string `json:"query"`
		MaxResults      *int   `json:"max_results"`
		IncludeMetadata *bool  `json:"include_metadata"`
		ProjectPath     string `json:"project_path"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeValidation(w, "query", "Field required")
		return
	}
	maxResults := 5
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
	}
	if maxResults < 1 || maxResults > 20 {
		writeValidation(w, "max_results", "Input should be between 1 and 20")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		writeDetail(w, http.StatusBadRequest, "No project indexed. Use POST /index first")
		return
	}
	var pr *project
	if req.ProjectPath != "" {
		pr = b.projects[req.ProjectPath]
		if pr == nil {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Project not indexed: %s. Available: %v", req.ProjectPath, b.order))
			return
		}
	} else {
		if _, ok := b.projects[b.current]; !ok {
			b.current = b.order[0]
		}
		pr = b.projects[b.current]
	}

	chunks := maxResults
	if pr.chunks < chunks {
		chunks = pr.chunks
	}
	prompt := fmt.Sprintf("# Context from %s\n\n%d relevant chunks for: %s\n", path.Base(pr.path), chunks, req.Query)
	out := map[string]any{
		"optimized_prompt": prompt,
		"context_chunks":   chunks,
		"token_count":      len(strings.Fields(prompt)) + 40*chunks,
	}
	if req.IncludeMetadata == nil || *req.IncludeMetadata {
		out["metadata"] = map[string]any{
			"project_root":       pr.path,
			"queried_project":    pr.path,
			"indexed_files":      pr.files,
			"total_chunks":       pr.chunks,
			"embedding_model":    pr.model,
			"available_projects": append([]string{}, b.order...),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listModels(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]string{}, b.models...))
}

func (b *Backend) projectModel(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := r.URL.Query().Get("project_path")
	pr, ok := b.projects[p]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Project not found: "+p)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"embedding_model": pr.model})
}

func (b *Backend) changeModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model       string `json:"model"`
		AutoReindex bool   `json:"auto_reindex"`
	}
	if !decode(w, r, &req) {
		return
	}
	p := r.URL.Query().Get("project_path")

	b.mu.Lock()
	defer b.mu.Unlock()
	pr, ok := b.projects[p]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Project not found: "+p)
		return
	}
	if !b.knownModelLocked(req.Model) {
		writeDetail(w, http.StatusBadRequest, "Unsupported model: "+req.Model)
		return
	}
	pr.model = req.Model
	status := "model_changed"
	if req.AutoReindex {
		status = "model_changed_reindexing"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"message":      fmt.Sprintf("Model for %s set to %s", path.Base(p), req.Model),
		"project_path": p,
		"model":        req.Model,
		"reindex":      req.AutoReindex,
	})
}

// targetLocked resolves an optional project path the way /stats does.
func (b *Backend) targetLocked(p string) (*project, int, string) {
	if len(b.order) == 0 {
		return nil, http.StatusBadRequest, "No project indexed"
	}
	if p != "" {
		pr, ok := b.projects[p]
		if !ok {
			return nil, http.StatusNotFound, "Project not found: " + p
		}
		return pr, 0, ""
	}
	if pr, ok := b.projects[b.current]; ok {
		return pr, 0, ""
	}
	return b.projects[b.order[0]], 0, ""
}

func (b *Backend) putLocked(p, model string, files, chunks int) {
	if _, ok := b.projects[p]; !ok {
		b.order = append(b.order, p)
	}
	if model == "" {
		model = DefaultModel
	}
	b.projects[p] = &project{path: p, files: files, chunks: chunks, model: model}
	if b.current == "" {
		b.current = p
	}
}

func (b *Backend) knownModelLocked(m string) bool {
	for _, known := range b.models {
		if known == m {
			return true
		}
	}
	return false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
