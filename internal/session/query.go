package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
)

// ErrSuperseded is returned by Search when a newer search was issued before
// this one resolved. Its result is discarded.
var ErrSuperseded = errors.New("query superseded by a newer one")

// Result bounds accepted by the backend.
const (
	DefaultMaxResults = 5
	MinMaxResults     = 1
	MaxMaxResults     = 20
)

// Query is one search request.
type Query struct {
	Text            string
	MaxResults      int // 0 means DefaultMaxResults
	IncludeMetadata bool
	Path            string // "" searches the backend's current project
}

// NewQuery returns a Query with the default options.
func NewQuery(text string) Query {
	return Query{Text: text, MaxResults: DefaultMaxResults, IncludeMetadata: true}
}

// Result is an applied search result.
type Result struct {
	Seq   uint64
	Query Query
	api.QueryResult
	Issued time.Time
	Dur    time.Duration
}

// QueryRecord is what a Recorder receives for each resolved search.
type QueryRecord struct {
	Seq           uint64
	Text          string
	Path          string
	MaxResults    int
	ContextChunks int
	TokenCount    int
	Err           string
	Issued        time.Time
	Dur           time.Duration
}

// Queries is the query orchestrator. Every Search takes a sequence number;
// only the most recently issued search may become Latest.
type Queries struct {
	backend  Backend
	registry *Registry
	indexer  *Indexer
	log      *otel.Logger
	recorder Recorder
	now      func() time.Time

	mu     sync.Mutex
	issued uint64
	latest *Result
}

func newQueries(b Backend, r *Registry, ix *Indexer, cfg config) *Queries {
	q := &Queries{
		backend:  b,
		registry: r,
		indexer:  ix,
		log:      cfg.log,
		recorder: cfg.recorder,
		now:      cfg.now,
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// Search validates q, sends it and applies the result if no newer search was
// issued meanwhile. A superseded search returns ErrSuperseded whether it
// succeeded or not. Failures leave Latest untouched.
func (q *Queries) Search(ctx context.Context, query Query) (Result, error) {
	if err := q.validate(&query); err != nil {
		q.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindQueryReject, Comp: "query", Query: query.Text, Path: query.Path, Msg: api.Message(err)})
		return Result{}, err
	}

	q.mu.Lock()
	q.issued++
	seq := q.issued
	q.mu.Unlock()

	issued := q.now()
	q.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindQueryStart, Comp: "query", Seq: seq, Query: query.Text, Path: query.Path})

	res, err := q.backend.Query(ctx, api.QueryRequest{
		Query:           query.Text,
		MaxResults:      query.MaxResults,
		IncludeMetadata: query.IncludeMetadata,
		ProjectPath:     query.Path,
	})
	dur := q.now().Sub(issued)
	out := Result{Seq: seq, Query: query, QueryResult: res, Issued: issued, Dur: dur}

	q.mu.Lock()
	if seq != q.issued {
		q.mu.Unlock()
		q.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindQueryStale, Comp: "query", Seq: seq, Query: query.Text, Dur: dur})
		return Result{Seq: seq, Query: query}, ErrSuperseded
	}
	if err == nil {
		applied := out
		q.latest = &applied
	}
	q.mu.Unlock()

	q.record(out, err)
	if err != nil {
		q.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindQueryComplete, Comp: "query", Seq: seq, Query: query.Text, Dur: dur, Err: err.Error()})
		return Result{Seq: seq, Query: query}, err
	}
	q.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindQueryComplete, Comp: "query", Seq: seq, Query: query.Text, Dur: dur, Count: res.ContextChunks})
	return out, nil
}

// validate normalizes query in place and rejects it without a network call
// when it cannot be sent.
func (q *Queries) validate(query *Query) error {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" {
		return api.Validation("query must not be empty")
	}
	if query.MaxResults == 0 {
		query.MaxResults = DefaultMaxResults
	}
	if query.MaxResults < MinMaxResults || query.MaxResults > MaxMaxResults {
		return api.Validation("max results must be between %d and %d", MinMaxResults, MaxMaxResults)
	}

	target := query.Path
	if target == "" {
		target = q.registry.Current()
	}
	if target != "" && q.indexer.IsChangingModel(target) {
		return api.Validation("%s is being reindexed for a model change", target)
	}
	return nil
}

func (q *Queries) record(r Result, err error) {
	if q.recorder == nil {
		return
	}
	rec := QueryRecord{
		Seq:           r.Seq,
		Text:          r.Query.Text,
		Path:          r.Query.Path,
		MaxResults:    r.Query.MaxResults,
		ContextChunks: r.ContextChunks,
		TokenCount:    r.TokenCount,
		Issued:        r.Issued,
		Dur:           r.Dur,
	}
	if err != nil {
		rec.Err = api.Message(err)
		rec.ContextChunks, rec.TokenCount = 0, 0
	}
	if rerr := q.recorder.RecordQuery(rec); rerr != nil {
		q.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Comp: "query", Seq: r.Seq, Err: rerr.Error()})
	}
}

// Latest returns the most recently applied result.
func (q *Queries) Latest() (Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.latest == nil {
		return Result{}, false
	}
	return *q.latest, true
}

// Issued returns the sequence number of the most recently issued search.
func (q *Queries) Issued() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.issued
}

// Clear drops the applied result and supersedes any search in flight.
func (q *Queries) Clear() {
	q.mu.Lock()
	q.issued++
	q.latest = nil
	q.mu.Unlock()
}
