// Package session is the client-side orchestration core: the project
// registry, the model selector, the index lifecycle controller and the query
// orchestrator, bundled as state owned by one Session.
//
// All state lives behind the owning component's mutex and changes only after
// the backend confirms. Nothing here renders; the TUI and ragctl read
// snapshots and call operations.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
)

// Backend is the subset of *api.Client the session drives. Tests substitute
// fakes; production passes the real client.
type Backend interface {
	ListProjects(ctx context.Context) (api.ProjectList, error)
	SwitchProject(ctx context.Context, path string) (api.SwitchResponse, error)
	Stats(ctx context.Context, path string) (api.ProjectStats, error)
	Clear(ctx context.Context, path string) (api.StatusResponse, error)
	ClearAll(ctx context.Context) (api.StatusResponse, error)
	Index(ctx context.Context, req api.IndexRequest) (api.IndexResponse, error)
	Query(ctx context.Context, req api.QueryRequest) (api.QueryResult, error)
	Models(ctx context.Context) ([]string, error)
	ProjectModel(ctx context.Context, path string) (string, error)
	ChangeProjectModel(ctx context.Context, path string, req api.ModelChangeRequest) (api.ModelChangeResponse, error)
}

var _ Backend = (*api.Client)(nil)

// Recorder receives settled index jobs and applied query results.
// internal/history implements it; failures are logged and otherwise ignored.
type Recorder interface {
	RecordJob(j Job) error
	RecordQuery(q QueryRecord) error
}

// defaultRefreshTimeout bounds the advisory registry refresh after a job settles.
const defaultRefreshTimeout = 10 * time.Second

// Session owns the orchestration state for one backend.
type Session struct {
	Registry *Registry
	Models   *Models
	Indexer  *Indexer
	Queries  *Queries

	log            *otel.Logger
	recorder       Recorder
	refreshTimeout time.Duration
	onSettled      func(Job)

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Session.
type Option func(*config)

type config struct {
	log            *otel.Logger
	recorder       Recorder
	strategy       ModelChangeStrategy
	onSettled      func(Job)
	refreshTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// WithLogger routes session events to l.
func WithLogger(l *otel.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithRecorder records settled jobs and applied queries.
func WithRecorder(r Recorder) Option {
	return func(c *config) { c.recorder = r }
}

// WithModelChangeStrategy picks the endpoint used for confirmed model changes.
func WithModelChangeStrategy(s ModelChangeStrategy) Option {
	return func(c *config) { c.strategy = s }
}

// OnJobSettled is called after a job settles and the follow-up registry
// refresh has finished (successfully or not). It runs on a background
// goroutine; the TUI forwards it with program.Send.
func OnJobSettled(fn func(Job)) Option {
	return func(c *config) { c.onSettled = fn }
}

// WithRefreshTimeout bounds the post-settle registry refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// New builds a Session over b.
func New(b Backend, opts ...Option) *Session {
	cfg := config{
		strategy:       ModelChangeViaIndex,
		refreshTimeout: defaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		log:            cfg.log,
		recorder:       cfg.recorder,
		refreshTimeout: cfg.refreshTimeout,
		onSettled:      cfg.onSettled,
	}
	s.Registry = newRegistry(b, cfg.log)
	s.Models = newModels(b, cfg.log)
	s.Indexer = newIndexer(b, s.Registry, s.Models, cfg)
	s.Queries = newQueries(b, s.Registry, s.Indexer, cfg)
	s.Registry.busy = s.Indexer.IsIndexing
	s.Registry.anyBusy = s.Indexer.AnyIndexing

	s.Indexer.OnIndexJobSettled(s.jobSettled)
	return s
}

// jobSettled records the job and starts the advisory refresh. The refresh
// tolerates a backend that does not yet reflect the job and never blocks
// the caller.
func (s *Session) jobSettled(j Job) {
	if s.recorder != nil {
		if err := s.recorder.RecordJob(j); err != nil {
			s.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "session", JobID: j.ID, Err: err.Error()})
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()
		if _, err := s.Registry.List(ctx); err != nil {
			s.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindProjectList, Comp: "session", JobID: j.ID, Err: err.Error(), Msg: "post-index refresh failed"})
		}
		if s.onSettled != nil {
			s.onSettled(j)
		}
	}()
}

// Close waits for outstanding background refreshes. Operations remain
// usable, but settled jobs no longer trigger refreshes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
