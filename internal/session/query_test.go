package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abelbrown/ragdeck/internal/api"
)

func TestSearchRejectsEmptyQuery(t *testing.T) {
	f := newFakeBackend()
	s := New(f)
	defer s.Close()

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := s.Queries.Search(context.Background(), NewQuery(text))
		if !api.IsValidation(err) {
			t.Errorf("Search(%q): expected validation error, got %v", text, err)
		}
	}
	if f.count("query") != 0 {
		t.Errorf("query calls = %d, want 0", f.count("query"))
	}
}

func TestSearchDefaults(t *testing.T) {
	f := newFakeBackend()
	s := New(f)
	defer s.Close()

	res, err := s.Queries.Search(context.Background(), NewQuery("  how does auth work  "))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	req := f.queryReqs[0]
	if req.Query != "how does auth work" || req.MaxResults != 5 || !req.IncludeMetadata || req.ProjectPath != "" {
		t.Errorf("request = %+v", req)
	}
	if res.OptimizedPrompt != "prompt for how does auth work" || res.Seq != 1 {
		t.Errorf("result = %+v", res)
	}
	if latest, ok := s.Queries.Latest(); !ok || latest.Seq != res.Seq {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
}

func TestSearchMaxResultsBounds(t *testing.T) {
	tests := []struct {
		max     int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{20, false},
		{21, true},
		{-1, true},
	}
	for _, tt := range tests {
		f := newFakeBackend()
		s := New(f)
		q := NewQuery("x")
		q.MaxResults = tt.max
		_, err := s.Queries.Search(context.Background(), q)
		if tt.wantErr != api.IsValidation(err) {
			t.Errorf("MaxResults=%d: err = %v", tt.max, err)
		}
		s.Close()
	}
}

func TestOutOfOrderResponsesKeepLatest(t *testing.T) {
	f := newFakeBackend()
	releaseA := make(chan struct{})
	enteredA := make(chan struct{})
	f.queryFn = func(ctx context.Context, req api.QueryRequest) (api.QueryResult, error) {
		if req.Query == "A" {
			close(enteredA)
			<-releaseA
		}
		return api.QueryResult{OptimizedPrompt: "result " + req.Query}, nil
	}
	s := New(f)
	defer s.Close()
	ctx := context.Background()

	type outcome struct {
		res Result
		err error
	}
	doneA := make(chan outcome, 1)
	go func() {
		res, err := s.Queries.Search(ctx, NewQuery("A"))
		doneA <- outcome{res, err}
	}()
	<-enteredA

	resB, err := s.Queries.Search(ctx, NewQuery("B"))
	if err != nil {
		t.Fatalf("Search(B) error = %v", err)
	}
	if resB.OptimizedPrompt != "result B" {
		t.Errorf("B result = %q", resB.OptimizedPrompt)
	}

	close(releaseA)
	a := <-doneA
	if !errors.Is(a.err, ErrSuperseded) {
		t.Errorf("A error = %v, want ErrSuperseded", a.err)
	}

	latest, ok := s.Queries.Latest()
	if !ok || latest.OptimizedPrompt != "result B" {
		t.Errorf("Latest() = %+v, want B's result", latest)
	}
}

func TestSupersededFailureIsNotSurfaced(t *testing.T) {
	f := newFakeBackend()
	releaseA := make(chan struct{})
	enteredA := make(chan struct{})
	f.queryFn = func(ctx context.Context, req api.QueryRequest) (api.QueryResult, error) {
		if req.Query == "A" {
			close(enteredA)
			<-releaseA
			return api.QueryResult{}, serverErr(500, "boom")
		}
		return api.QueryResult{OptimizedPrompt: "ok"}, nil
	}
	s := New(f)
	defer s.Close()
	ctx := context.Background()

	doneA := make(chan error, 1)
	go func() {
		_, err := s.Queries.Search(ctx, NewQuery("A"))
		doneA <- err
	}()
	<-enteredA
	if _, err := s.Queries.Search(ctx, NewQuery("B")); err != nil {
		t.Fatalf("Search(B) error = %v", err)
	}
	close(releaseA)
	if err := <-doneA; !errors.Is(err, ErrSuperseded) {
		t.Errorf("A error = %v, want ErrSuperseded", err)
	}
}

func TestSearchFailureKeepsLatest(t *testing.T) {
	f := newFakeBackend()
	s := New(f)
	defer s.Close()
	ctx := context.Background()

	first, err := s.Queries.Search(ctx, NewQuery("first"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	f.queryFn = func(context.Context, api.QueryRequest) (api.QueryResult, error) {
		return api.QueryResult{}, &api.Error{Kind: api.KindNetwork, Message: api.MsgNetwork}
	}
	_, err = s.Queries.Search(ctx, NewQuery("second"))
	if err == nil || err.Error() != "could not reach server" {
		t.Fatalf("expected network message, got %v", err)
	}
	latest, _ := s.Queries.Latest()
	if latest.Seq != first.Seq {
		t.Errorf("Latest().Seq = %d, want %d", latest.Seq, first.Seq)
	}
}

func TestSearchRejectedDuringModelChange(t *testing.T) {
	f := newFakeBackend()
	twoProjects(f)
	f.indexGate = make(chan struct{})
	f.indexEntered = make(chan string, 1)
	s := New(f)
	defer s.Close()
	ctx := context.Background()
	s.Registry.List(ctx)

	d, _ := s.Models.RequestChange(ctx, "/a", "model-b")
	pc, _ := d.Confirm()
	done := make(chan error, 1)
	go func() {
		_, err := s.Indexer.ApplyModelChange(ctx, pc)
		done <- err
	}()
	<-f.indexEntered

	// Explicit path and implicit current project are both blocked.
	q := NewQuery("anything")
	q.Path = "/a"
	if _, err := s.Queries.Search(ctx, q); !api.IsValidation(err) {
		t.Errorf("explicit path: expected validation error, got %v", err)
	}
	if _, err := s.Queries.Search(ctx, NewQuery("anything")); !api.IsValidation(err) {
		t.Errorf("current project: expected validation error, got %v", err)
	}
	// Other projects stay searchable.
	q.Path = "/b"
	if _, err := s.Queries.Search(ctx, q); err != nil {
		t.Errorf("other project: %v", err)
	}
	if f.count("query") != 1 {
		t.Errorf("query calls = %d, want 1", f.count("query"))
	}

	close(f.indexGate)
	if err := <-done; err != nil {
		t.Fatalf("ApplyModelChange() error = %v", err)
	}
	if _, err := s.Queries.Search(ctx, NewQuery("anything")); err != nil {
		t.Errorf("after model change: %v", err)
	}
}

func TestPlainReindexDoesNotBlockSearch(t *testing.T) {
	f := newFakeBackend()
	f.indexGate = make(chan struct{})
	f.indexEntered = make(chan string, 1)
	s := New(f)
	defer s.Close()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		s.Indexer.Reindex(ctx, "/p", "")
		close(done)
	}()
	<-f.indexEntered

	q := NewQuery("x")
	q.Path = "/p"
	if _, err := s.Queries.Search(ctx, q); err != nil {
		t.Errorf("Search during plain reindex: %v", err)
	}
	close(f.indexGate)
	<-done
}

func TestClearSupersedesInFlight(t *testing.T) {
	f := newFakeBackend()
	release := make(chan struct{})
	entered := make(chan struct{})
	f.queryFn = func(ctx context.Context, req api.QueryRequest) (api.QueryResult, error) {
		close(entered)
		<-release
		return api.QueryResult{OptimizedPrompt: "late"}, nil
	}
	s := New(f)
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Queries.Search(context.Background(), NewQuery("q"))
		done <- err
	}()
	<-entered
	s.Queries.Clear()
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
	if _, ok := s.Queries.Latest(); ok {
		t.Error("Latest() should be empty after Clear")
	}
}

func TestQueriesRecorded(t *testing.T) {
	f := newFakeBackend()
	rec := &memRecorder{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(f, WithRecorder(rec))
	s.Queries.now = func() time.Time { return now }
	defer s.Close()
	ctx := context.Background()

	s.Queries.Search(ctx, NewQuery("ok"))
	f.queryFn = func(context.Context, api.QueryRequest) (api.QueryResult, error) {
		return api.QueryResult{}, serverErr(500, "boom")
	}
	s.Queries.Search(ctx, NewQuery("bad"))
	s.Queries.Search(ctx, NewQuery(""))

	if len(rec.queries) != 2 {
		t.Fatalf("recorded %d queries, want 2", len(rec.queries))
	}
	if rec.queries[0].Text != "ok" || rec.queries[0].Err != "" || !rec.queries[0].Issued.Equal(now) {
		t.Errorf("first record = %+v", rec.queries[0])
	}
	if rec.queries[1].Err != "boom" {
		t.Errorf("second record = %+v", rec.queries[1])
	}
}
