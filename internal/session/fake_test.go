package session

import (
	"context"
	"sync"

	"github.com/abelbrown/ragdeck/internal/api"
)

// fakeBackend is a programmable Backend. Zero value answers every call
// successfully with empty data.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	list    api.ProjectList
	listErr error

	switchErr error
	// switch succeeds with only a message, as some backends reply
	switchBare bool

	stats    map[string]api.ProjectStats
	statsErr error

	clearErr error

	models       []string
	modelsErr    error
	projectModel map[string]string
	modelErr     error

	indexReqs    []api.IndexRequest
	indexResp    api.IndexResponse
	indexErr     error
	indexGate    chan struct{} // Index blocks on it when non-nil
	indexEntered chan string   // receives the path when Index is entered

	changeReqs []api.ModelChangeRequest
	changeErr  error

	queryReqs []api.QueryRequest
	queryFn   func(ctx context.Context, req api.QueryRequest) (api.QueryResult, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:        make(map[string]int),
		stats:        make(map[string]api.ProjectStats),
		projectModel: make(map[string]string),
	}
}

func serverErr(status int, msg string) error {
	return &api.Error{Kind: api.KindServer, Status: status, Message: msg}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) ListProjects(ctx context.Context) (api.ProjectList, error) {
	f.hit("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return api.ProjectList{}, f.listErr
	}
	out := f.list
	out.Projects = append([]api.Project(nil), f.list.Projects...)
	return out, nil
}

func (f *fakeBackend) SwitchProject(ctx context.Context, path string) (api.SwitchResponse, error) {
	f.hit("switch")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switchErr != nil {
		return api.SwitchResponse{}, f.switchErr
	}
	f.list.CurrentProject = path
	for i := range f.list.Projects {
		f.list.Projects[i].IsCurrent = f.list.Projects[i].Path == path
	}
	if f.switchBare {
		return api.SwitchResponse{Message: "Switched to " + path}, nil
	}
	return api.SwitchResponse{Status: "switched", CurrentProject: path, Message: "Switched to " + path}, nil
}

func (f *fakeBackend) Stats(ctx context.Context, path string) (api.ProjectStats, error) {
	f.hit("stats")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return api.ProjectStats{}, f.statsErr
	}
	st, ok := f.stats[path]
	if !ok {
		return api.ProjectStats{}, serverErr(404, "project not found")
	}
	return st, nil
}

func (f *fakeBackend) Clear(ctx context.Context, path string) (api.StatusResponse, error) {
	f.hit("clear")
	if f.clearErr != nil {
		return api.StatusResponse{}, f.clearErr
	}
	return api.StatusResponse{Status: "cleared", Message: "Cleared " + path}, nil
}

func (f *fakeBackend) ClearAll(ctx context.Context) (api.StatusResponse, error) {
	f.hit("clear_all")
	if f.clearErr != nil {
		return api.StatusResponse{}, f.clearErr
	}
	return api.StatusResponse{Status: "cleared", Message: "All projects cleared"}, nil
}

func (f *fakeBackend) Index(ctx context.Context, req api.IndexRequest) (api.IndexResponse, error) {
	f.hit("index")
	f.mu.Lock()
	f.indexReqs = append(f.indexReqs, req)
	gate, entered := f.indexGate, f.indexEntered
	f.mu.Unlock()

	if entered != nil {
		entered <- req.ProjectPath
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.IndexResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return api.IndexResponse{}, f.indexErr
	}
	if req.Model != "" {
		f.projectModel[req.ProjectPath] = req.Model
	}
	resp := f.indexResp
	resp.ProjectPath = req.ProjectPath
	if resp.Status == "" {
		resp.Status = "indexing_started"
	}
	return resp, nil
}

func (f *fakeBackend) Query(ctx context.Context, req api.QueryRequest) (api.QueryResult, error) {
	f.hit("query")
	f.mu.Lock()
	f.queryReqs = append(f.queryReqs, req)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return api.QueryResult{OptimizedPrompt: "prompt for " + req.Query, ContextChunks: 1}, nil
}

func (f *fakeBackend) Models(ctx context.Context) ([]string, error) {
	f.hit("models")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	return append([]string(nil), f.models...), nil
}

func (f *fakeBackend) ProjectModel(ctx context.Context, path string) (string, error) {
	f.hit("project_model")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modelErr != nil {
		return "", f.modelErr
	}
	return f.projectModel[path], nil
}

func (f *fakeBackend) ChangeProjectModel(ctx context.Context, path string, req api.ModelChangeRequest) (api.ModelChangeResponse, error) {
	f.hit("change_model")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeReqs = append(f.changeReqs, req)
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	f.projectModel[path] = req.Model
	return api.ModelChangeResponse{"status": "model_changed", "message": "reindexing with " + req.Model}, nil
}

func (f *fakeBackend) lastIndex() api.IndexRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.indexReqs) == 0 {
		return api.IndexRequest{}
	}
	return f.indexReqs[len(f.indexReqs)-1]
}

// twoProjects seeds the fake with /a (current, model-a) and /b.
func twoProjects(f *fakeBackend) {
	f.list = api.ProjectList{
		TotalProjects:  2,
		CurrentProject: "/a",
		Projects: []api.Project{
			{Path: "/a", Name: "a", IndexedFiles: 3, TotalChunks: 30, EmbeddingModel: "model-a", IsCurrent: true},
			{Path: "/b", Name: "b", IndexedFiles: 1, TotalChunks: 5, EmbeddingModel: "model-a"},
		},
	}
	f.projectModel["/a"] = "model-a"
	f.projectModel["/b"] = "model-a"
	f.stats["/a"] = api.ProjectStats{ProjectRoot: "/a", IndexedFiles: 3, TotalChunks: 30, EmbeddingModel: "model-a"}
	f.stats["/b"] = api.ProjectStats{ProjectRoot: "/b", IndexedFiles: 1, TotalChunks: 5, EmbeddingModel: "model-a"}
	f.models = []string{"model-a", "model-b"}
}
