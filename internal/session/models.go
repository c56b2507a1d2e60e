package session

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
)

// DecisionKind is the outcome of comparing a desired model with the current one.
type DecisionKind int

const (
	// NoOp: the desired model is already assigned.
	NoOp DecisionKind = iota
	// RequiresConfirmation: the change would invalidate the index and must be
	// confirmed before anything is sent.
	RequiresConfirmation
)

func (k DecisionKind) String() string {
	if k == RequiresConfirmation {
		return "requires_confirmation"
	}
	return "noop"
}

// Decision is returned by RequestChange and Decide.
type Decision struct {
	Kind         DecisionKind
	Path         string
	CurrentModel string
	PendingModel string // set when Kind is RequiresConfirmation
}

// Confirm records the user's explicit confirmation. It is the only way to
// obtain a PendingChange the Indexer accepts.
func (d Decision) Confirm() (PendingChange, error) {
	if d.Kind != RequiresConfirmation {
		return PendingChange{}, api.Validation("model %s is already assigned", d.CurrentModel)
	}
	return PendingChange{path: d.Path, from: d.CurrentModel, model: d.PendingModel, confirmed: true}, nil
}

// PendingChange is a confirmed, not yet applied, model change. The zero
// value is unconfirmed and is rejected by Indexer.ApplyModelChange.
type PendingChange struct {
	path      string
	from      string
	model     string
	confirmed bool
}

func (p PendingChange) Path() string { return p.path }
func (p PendingChange) From() string { return p.from }
func (p PendingChange) Model() string { return p.model }
func (p PendingChange) Confirmed() bool { return p.confirmed }

// Decide compares the current and desired model for path. Pure.
func Decide(path, current, desired string) Decision {
	if desired == current {
		return Decision{Kind: NoOp, Path: path, CurrentModel: current}
	}
	return Decision{Kind: RequiresConfirmation, Path: path, CurrentModel: current, PendingModel: desired}
}

// ModelInfo is what the model picker needs for one project.
type ModelInfo struct {
	Available []string
	Current   string
}

// Models tracks the backend's embedding models and each project's
// assignment. Assignments are always fetched from the backend; the
// per-path cache only serves display and guards.
type Models struct {
	backend Backend
	log     *otel.Logger

	mu        sync.Mutex
	available []string
	loaded    bool
	current   map[string]string
}

func newModels(b Backend, log *otel.Logger) *Models {
	return &Models{backend: b, log: log, current: make(map[string]string)}
}

// Available returns the session-cached model list, fetching it once.
func (m *Models) Available(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	if m.loaded {
		out := append([]string(nil), m.available...)
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh refetches the model list. The cache is kept on failure.
func (m *Models) Refresh(ctx context.Context) ([]string, error) {
	models, err := m.backend.Models(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.available = append([]string(nil), models...)
	m.loaded = true
	m.mu.Unlock()
	return models, nil
}

// Current fetches path's embedding model from the backend.
func (m *Models) Current(ctx context.Context, path string) (string, error) {
	model, err := m.backend.ProjectModel(ctx, path)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.current[path] = model
	m.mu.Unlock()
	return model, nil
}

// Cached returns the last fetched model for path.
func (m *Models) Cached(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	model, ok := m.current[path]
	return model, ok
}

// Invalidate drops the cached model for path.
func (m *Models) Invalidate(path string) {
	m.mu.Lock()
	delete(m.current, path)
	m.mu.Unlock()
}

// Load fetches the available models and path's current model concurrently.
func (m *Models) Load(ctx context.Context, path string) (ModelInfo, error) {
	var info ModelInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		models, err := m.Available(gctx)
		info.Available = models
		return err
	})
	g.Go(func() error {
		model, err := m.Current(gctx, path)
		info.Current = model
		return err
	})
	if err := g.Wait(); err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}

// RequestChange fetches path's current model and decides whether switching
// to desired needs confirmation. It never mutates anything on the backend.
func (m *Models) RequestChange(ctx context.Context, path, desired string) (Decision, error) {
	desired = strings.TrimSpace(desired)
	if strings.TrimSpace(path) == "" {
		return Decision{}, api.Validation("project path is required")
	}
	if desired == "" {
		return Decision{}, api.Validation("model is required")
	}
	current, err := m.Current(ctx, path)
	if err != nil {
		return Decision{}, err
	}
	d := Decide(path, current, desired)
	m.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindModelDecision, Comp: "models", Path: path, Model: desired, Msg: d.Kind.String()})
	return d, nil
}
