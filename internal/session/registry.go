package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
)

// Registry tracks the known projects, the current one and the last stats
// snapshot per project. The current project only changes after the backend
// confirms a switch.
type Registry struct {
	backend Backend
	log     *otel.Logger

	// set by Session; report whether indexing is outstanding
	busy    func(path string) bool
	anyBusy func() bool

	mu       sync.RWMutex
	projects []api.Project
	current  string
	stats    map[string]api.ProjectStats
	loaded   bool
}

func newRegistry(b Backend, log *otel.Logger) *Registry {
	return &Registry{
		backend: b,
		log:     log,
		busy:    func(string) bool { return false },
		anyBusy: func() bool { return false },
		stats:   make(map[string]api.ProjectStats),
	}
}

// List fetches the project list and replaces the local copy. On failure the
// previous list and current project are kept and the error is returned.
func (r *Registry) List(ctx context.Context) (api.ProjectList, error) {
	list, err := r.backend.ListProjects(ctx)
	if err != nil {
		r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindProjectList, Comp: "registry", Err: err.Error()})
		return api.ProjectList{}, err
	}

	projects := make([]api.Project, len(list.Projects))
	copy(projects, list.Projects)

	r.mu.Lock()
	r.projects = projects
	r.current = list.CurrentProject
	r.loaded = true
	r.mu.Unlock()

	r.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindProjectList, Comp: "registry", Count: len(projects), Path: list.CurrentProject})
	return list, nil
}

// Select switches the backend's current project, then reconciles with List.
// A failed switch leaves the current project untouched. A failed List after
// a successful switch still leaves the confirmed current project in place
// and returns the List error.
func (r *Registry) Select(ctx context.Context, path string) (api.SwitchResponse, error) {
	if strings.TrimSpace(path) == "" {
		return api.SwitchResponse{}, api.Validation("project path is required")
	}

	resp, err := r.backend.SwitchProject(ctx, path)
	if err != nil {
		r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindProjectSwitch, Comp: "registry", Path: path, Err: err.Error()})
		return resp, err
	}

	confirmed := resp.CurrentProject
	if confirmed == "" {
		confirmed = path
	}
	r.mu.Lock()
	r.current = confirmed
	for i := range r.projects {
		r.projects[i].IsCurrent = r.projects[i].Path == confirmed
	}
	r.mu.Unlock()
	r.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindProjectSwitch, Comp: "registry", Path: confirmed, Msg: resp.Message})

	if _, err := r.List(ctx); err != nil {
		return resp, &RefreshError{Err: err}
	}
	return resp, nil
}

// RefreshError is returned by Select when the backend confirmed the switch
// but the follow-up project list failed. Current already reflects the switch.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return e.Err.Error() }
func (e *RefreshError) Unwrap() error { return e.Err }

// SwitchConfirmed reports whether an error from Select still means the
// backend switched projects.
func SwitchConfirmed(err error) bool {
	var re *RefreshError
	return err == nil || errors.As(err, &re)
}

// Stats fetches a stats snapshot. It has no backend side effects and may run
// during a reindex; in-progress counts are valid. The snapshot is cached and
// the matching project's counts are updated.
func (r *Registry) Stats(ctx context.Context, path string) (api.ProjectStats, error) {
	st, err := r.backend.Stats(ctx, path)
	if err != nil {
		return st, err
	}
	key := path
	if key == "" {
		key = st.ProjectRoot
	}
	if key != "" {
		r.mu.Lock()
		r.stats[key] = st
		r.applyStatsLocked(key, st)
		r.mu.Unlock()
	}
	return st, nil
}

// Clear drops one project's index on the backend, then removes it locally.
// Rejected while the project is indexing.
func (r *Registry) Clear(ctx context.Context, path string) (api.StatusResponse, error) {
	if strings.TrimSpace(path) == "" {
		return api.StatusResponse{}, api.Validation("project path is required")
	}
	if r.busy(path) {
		r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindProjectClear, Comp: "registry", Path: path, Msg: "rejected: indexing"})
		return api.StatusResponse{}, api.Validation("cannot clear %s while it is indexing", path)
	}

	resp, err := r.backend.Clear(ctx, path)
	if err != nil {
		r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindProjectClear, Comp: "registry", Path: path, Err: err.Error()})
		return resp, err
	}

	r.mu.Lock()
	kept := r.projects[:0:0]
	for _, p := range r.projects {
		if p.Path != path {
			kept = append(kept, p)
		}
	}
	r.projects = kept
	delete(r.stats, path)
	if r.current == path {
		r.current = ""
	}
	r.mu.Unlock()

	r.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindProjectClear, Comp: "registry", Path: path, Msg: resp.Message})
	return resp, nil
}

// ClearAll drops every index on the backend. Rejected while any job is
// outstanding.
func (r *Registry) ClearAll(ctx context.Context) (api.StatusResponse, error) {
	if r.anyBusy() {
		return api.StatusResponse{}, api.Validation("cannot clear while indexing is in progress")
	}
	resp, err := r.backend.ClearAll(ctx)
	if err != nil {
		r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindProjectClear, Comp: "registry", Err: err.Error()})
		return resp, err
	}

	r.mu.Lock()
	r.projects = nil
	r.current = ""
	r.stats = make(map[string]api.ProjectStats)
	r.mu.Unlock()

	r.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindProjectClear, Comp: "registry", Msg: "all projects cleared"})
	return resp, nil
}

// Projects returns a copy of the last successfully listed projects.
func (r *Registry) Projects() []api.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// Current returns the confirmed current project path, or "".
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Loaded reports whether List has succeeded at least once.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Project returns the known project at path.
func (r *Registry) Project(path string) (api.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.Path == path {
			return p, true
		}
	}
	return api.Project{}, false
}

// LastStats returns the cached stats snapshot for path.
func (r *Registry) LastStats(path string) (api.ProjectStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stats[path]
	return st, ok
}

// applyIndexed records the outcome of a successful index job. A nil stats
// keeps the last-known counts and only updates the model.
func (r *Registry) applyIndexed(path, model string, st *api.ProjectStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st != nil {
		if model != "" && st.EmbeddingModel == "" {
			st.EmbeddingModel = model
		}
		r.stats[path] = *st
		r.applyStatsLocked(path, *st)
		return
	}

	if prev, ok := r.stats[path]; ok && model != "" {
		prev.EmbeddingModel = model
		r.stats[path] = prev
	}
	for i := range r.projects {
		if r.projects[i].Path == path && model != "" {
			r.projects[i].EmbeddingModel = model
		}
	}
}

// applyStatsLocked copies counts from st onto the listed project. Caller holds mu.
func (r *Registry) applyStatsLocked(path string, st api.ProjectStats) {
	for i := range r.projects {
		if r.projects[i].Path != path {
			continue
		}
		r.projects[i].IndexedFiles = st.IndexedFiles
		r.projects[i].TotalChunks = st.TotalChunks
		if st.EmbeddingModel != "" {
			r.projects[i].EmbeddingModel = st.EmbeddingModel
		}
	}
}
