package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
)

// ErrJobOutstanding is wrapped by the validation error returned when a path
// already has an active job.
var ErrJobOutstanding = errors.New("indexing already in progress")

func outstandingError(path string) error {
	return &api.Error{
		Kind:    api.KindValidation,
		Message: fmt.Sprintf("indexing already in progress for %s", path),
		Err:     ErrJobOutstanding,
	}
}

// JobStatus is the lifecycle status of one IndexJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Active reports whether the job is still outstanding.
func (s JobStatus) Active() bool { return s == JobPending || s == JobRunning }

// State is the per-project lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateFailed   State = "failed"
)

// ModelChangeStrategy selects how a confirmed model change is sent.
// Both variants set the model and force a reindex.
type ModelChangeStrategy int

const (
	// ModelChangeViaIndex sends POST /index {model, force_reindex: true}.
	ModelChangeViaIndex ModelChangeStrategy = iota
	// ModelChangeViaModelEndpoint sends POST /projects/model/change {model, auto_reindex: true}.
	ModelChangeViaModelEndpoint
)

func (s ModelChangeStrategy) String() string {
	if s == ModelChangeViaModelEndpoint {
		return "model-endpoint"
	}
	return "index"
}

// ParseModelChangeStrategy accepts "index" or "model-endpoint".
func ParseModelChangeStrategy(s string) (ModelChangeStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "index":
		return ModelChangeViaIndex, nil
	case "model-endpoint", "endpoint":
		return ModelChangeViaModelEndpoint, nil
	}
	return ModelChangeViaIndex, fmt.Errorf("unknown model change strategy %q", s)
}

// Job is one indexing operation. Values returned by the Indexer are copies.
type Job struct {
	ID          string
	Path        string
	Model       string // requested model, "" for the backend default
	Extensions  []string
	Force       bool
	ModelChange bool // part of a confirmed model change
	Status      JobStatus
	Message     string
	Progress    *float64 // only when the backend reports it
	CurrentFile string
	Started     time.Time
	Finished    time.Time
	Err         error
}

// Duration is the elapsed time of a settled job, or zero.
func (j Job) Duration() time.Duration {
	if j.Finished.IsZero() {
		return 0
	}
	return j.Finished.Sub(j.Started)
}

// StartRequest describes a plain index request.
type StartRequest struct {
	Path       string
	Extensions []string // nil uses the backend's defaults
	Model      string
	Force      bool
}

// Indexer is the index lifecycle controller. Per project path it allows at
// most one outstanding job; a second request is rejected before any
// network call.
type Indexer struct {
	backend  Backend
	registry *Registry
	models   *Models
	log      *otel.Logger
	strategy ModelChangeStrategy
	now      func() time.Time
	newID    func() string

	mu    sync.Mutex
	jobs  map[string]*Job // latest job per path
	hooks []func(Job)
}

func newIndexer(b Backend, r *Registry, m *Models, cfg config) *Indexer {
	ix := &Indexer{
		backend:  b,
		registry: r,
		models:   m,
		log:      cfg.log,
		strategy: cfg.strategy,
		now:      cfg.now,
		newID:    cfg.newID,
		jobs:     make(map[string]*Job),
	}
	if ix.now == nil {
		ix.now = time.Now
	}
	if ix.newID == nil {
		ix.newID = uuid.NewString
	}
	return ix
}

// OnIndexJobSettled registers fn to run after every job reaches a terminal
// status. Hooks run synchronously on the goroutine that ran the job.
func (ix *Indexer) OnIndexJobSettled(fn func(Job)) {
	ix.mu.Lock()
	ix.hooks = append(ix.hooks, fn)
	ix.mu.Unlock()
}

// Start indexes req.Path. A model that differs from the project's
// assignment on the backend is rejected: model changes go through
// ApplyModelChange.
func (ix *Indexer) Start(ctx context.Context, req StartRequest) (Job, error) {
	if strings.TrimSpace(req.Path) == "" {
		return Job{}, api.Validation("project path is required")
	}
	if err := ix.rejectOutstanding(req.Path); err != nil {
		return Job{}, err
	}
	if err := ix.checkModel(ctx, req.Path, req.Model); err != nil {
		return Job{}, err
	}
	job := &Job{
		Path:       req.Path,
		Model:      req.Model,
		Extensions: append([]string(nil), req.Extensions...),
		Force:      req.Force,
	}
	return ix.run(ctx, job, ix.sendIndex)
}

// Reindex is Start with the force flag set, so the backend discards the
// existing index instead of merging.
func (ix *Indexer) Reindex(ctx context.Context, path, model string) (Job, error) {
	return ix.Start(ctx, StartRequest{Path: path, Model: model, Force: true})
}

// ApplyModelChange sends a confirmed model change as a forced reindex. On
// success the model cache for the path is invalidated and refetched; on
// failure the previous assignment stays authoritative.
func (ix *Indexer) ApplyModelChange(ctx context.Context, pc PendingChange) (Job, error) {
	if !pc.Confirmed() {
		return Job{}, api.Validation("model change has not been confirmed")
	}
	if pc.Model() == pc.From() {
		return Job{}, api.Validation("model %s is already assigned", pc.Model())
	}
	job := &Job{
		Path:        pc.Path(),
		Model:       pc.Model(),
		Force:       true,
		ModelChange: true,
	}
	send := ix.sendIndex
	if ix.strategy == ModelChangeViaModelEndpoint {
		send = ix.sendModelChange
	}
	j, err := ix.run(ctx, job, send)
	ix.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindModelChange, Comp: "indexer", JobID: j.ID, Path: pc.Path(), Model: pc.Model(), Status: statusCode(err), Msg: string(j.Status)})
	return j, err
}

// checkModel rejects an implicit model change. The assignment is always
// fetched from the backend; a project the backend does not know yet has
// none, so any model is an initial choice.
func (ix *Indexer) checkModel(ctx context.Context, path, model string) error {
	if model == "" {
		return nil
	}
	current, err := ix.models.Current(ctx, path)
	if err != nil {
		var e *api.Error
		if !errors.As(err, &e) || e.Kind != api.KindServer || e.Status != http.StatusNotFound {
			return err
		}
		current = ""
	}
	if current != "" && current != model {
		ix.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindIndexReject, Comp: "indexer", Path: path, Model: model, Msg: "model change needs confirmation"})
		return api.Validation("changing %s from %s to %s requires confirmation", path, current, model)
	}
	return nil
}

// rejectOutstanding fails when path already has an active job. run repeats
// the check under the same lock that registers the job.
func (ix *Indexer) rejectOutstanding(path string) error {
	ix.mu.Lock()
	var prevID string
	prev, ok := ix.jobs[path]
	active := ok && prev.Status.Active()
	if active {
		prevID = prev.ID
	}
	ix.mu.Unlock()
	if active {
		ix.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindIndexReject, Comp: "indexer", JobID: prevID, Path: path, Msg: "job already outstanding"})
		return outstandingError(path)
	}
	return nil
}

type sendFunc func(ctx context.Context, j *Job) (message, model string, err error)

func (ix *Indexer) sendIndex(ctx context.Context, j *Job) (string, string, error) {
	resp, err := ix.backend.Index(ctx, api.IndexRequest{
		ProjectPath:    j.Path,
		FileExtensions: j.Extensions,
		Model:          j.Model,
		ForceReindex:   j.Force,
	})
	if err != nil {
		return "", "", err
	}
	ix.mu.Lock()
	j.Progress = resp.Progress
	j.CurrentFile = resp.CurrentFile
	ix.mu.Unlock()

	msg := resp.Message
	if msg == "" {
		msg = resp.Status
	}
	model := resp.EmbeddingModel
	if model == "" {
		model = j.Model
	}
	return msg, model, nil
}

func (ix *Indexer) sendModelChange(ctx context.Context, j *Job) (string, string, error) {
	resp, err := ix.backend.ChangeProjectModel(ctx, j.Path, api.ModelChangeRequest{Model: j.Model, AutoReindex: true})
	if err != nil {
		return "", "", err
	}
	msg := resp.Message()
	if msg == "" {
		msg = resp.Status()
	}
	return msg, j.Model, nil
}

// run performs the check-and-set, the request and the settle step.
func (ix *Indexer) run(ctx context.Context, job *Job, send sendFunc) (Job, error) {
	ix.mu.Lock()
	if prev, ok := ix.jobs[job.Path]; ok && prev.Status.Active() {
		ix.mu.Unlock()
		ix.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindIndexReject, Comp: "indexer", JobID: prev.ID, Path: job.Path, Msg: "job already outstanding"})
		return Job{}, outstandingError(job.Path)
	}
	job.ID = ix.newID()
	job.Status = JobPending
	job.Started = ix.now()
	ix.jobs[job.Path] = job
	ix.mu.Unlock()

	ix.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindIndexStart, Comp: "indexer", JobID: job.ID, Path: job.Path, Model: job.Model, Extra: map[string]any{"force": job.Force, "model_change": job.ModelChange}})

	ix.setStatus(job, JobRunning, "")
	msg, model, err := send(ctx, job)
	if err != nil {
		ix.mu.Lock()
		job.Err = err
		ix.mu.Unlock()
		ix.setStatus(job, JobFailed, api.Message(err))
		ix.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindIndexError, Comp: "indexer", JobID: job.ID, Path: job.Path, Err: err.Error()})
		return ix.settle(job), err
	}

	// Fresh counts are best-effort; without them the last-known counts stay.
	var stats *api.ProjectStats
	if st, serr := ix.backend.Stats(ctx, job.Path); serr == nil {
		stats = &st
	}
	ix.registry.applyIndexed(job.Path, model, stats)

	// Settle hooks must see the new assignment.
	if job.ModelChange {
		ix.models.Invalidate(job.Path)
		if _, cerr := ix.models.Current(ctx, job.Path); cerr != nil {
			ix.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindModelChange, Comp: "indexer", JobID: job.ID, Path: job.Path, Err: cerr.Error(), Msg: "model refetch failed"})
		}
	}

	ix.setStatus(job, JobSucceeded, msg)
	return ix.settle(job), nil
}

func (ix *Indexer) setStatus(job *Job, status JobStatus, msg string) {
	ix.mu.Lock()
	job.Status = status
	if msg != "" {
		job.Message = msg
	}
	if !status.Active() {
		job.Finished = ix.now()
	}
	ix.mu.Unlock()
}

// settle emits the settled event and runs hooks with a copy of job.
func (ix *Indexer) settle(job *Job) Job {
	ix.mu.Lock()
	snap := job.copy()
	hooks := append([]func(Job){}, ix.hooks...)
	ix.mu.Unlock()

	ix.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindIndexSettled, Comp: "indexer", JobID: snap.ID, Path: snap.Path, Model: snap.Model, Dur: snap.Duration(), Msg: string(snap.Status)})
	for _, fn := range hooks {
		fn(snap)
	}
	return snap
}

func (j *Job) copy() Job {
	out := *j
	out.Extensions = append([]string(nil), j.Extensions...)
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	return out
}

// State returns path's lifecycle state.
func (ix *Indexer) State(path string) State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	j, ok := ix.jobs[path]
	switch {
	case !ok:
		return StateIdle
	case j.Status.Active():
		return StateIndexing
	case j.Status == JobFailed:
		return StateFailed
	}
	return StateIdle
}

// IsIndexing reports whether path has an outstanding job.
func (ix *Indexer) IsIndexing(path string) bool {
	return ix.State(path) == StateIndexing
}

// AnyIndexing reports whether any path has an outstanding job.
func (ix *Indexer) AnyIndexing() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, j := range ix.jobs {
		if j.Status.Active() {
			return true
		}
	}
	return false
}

// IsChangingModel reports whether path has an outstanding model-change job.
// Queries against such a path are rejected.
func (ix *Indexer) IsChangingModel(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	j, ok := ix.jobs[path]
	return ok && j.ModelChange && j.Status.Active()
}

// Job returns the latest job for path.
func (ix *Indexer) Job(path string) (Job, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	j, ok := ix.jobs[path]
	if !ok {
		return Job{}, false
	}
	return j.copy(), true
}

// Jobs returns the latest job of every path, ordered by start time.
func (ix *Indexer) Jobs() []Job {
	ix.mu.Lock()
	out := make([]Job, 0, len(ix.jobs))
	for _, j := range ix.jobs {
		out = append(out, j.copy())
	}
	ix.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Started.Before(out[b].Started) })
	return out
}

func statusCode(err error) int {
	var e *api.Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
