package api

// Project is one entry of GET /projects.
type Project struct {
	Path           string `json:"path"`
	Name           string `json:"name"`
	IndexedFiles   int    `json:"indexed_files"`
	TotalChunks    int    `json:"total_chunks"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	IsCurrent      bool   `json:"is_current"`
}

// ProjectList is the GET /projects response. CurrentProject is empty when
// the backend reports null.
type ProjectList struct {
	TotalProjects  int       `json:"total_projects"`
	CurrentProject string    `json:"current_project"`
	Projects       []Project `json:"projects"`
}

// SwitchResponse is the POST /switch response.
type SwitchResponse struct {
	Status         string `json:"status"`
	CurrentProject string `json:"current_project"`
	Message        string `json:"message"`
}

// ProjectStats is the GET /stats response. A snapshot taken mid-reindex is
// valid and reflects in-progress counts.
type ProjectStats struct {
	ProjectRoot    string   `json:"project_root"`
	IndexedFiles   int      `json:"indexed_files"`
	TotalChunks    int      `json:"total_chunks"`
	VectorDBSize   string   `json:"vector_db_size"`
	EmbeddingModel string   `json:"embedding_model"`
	IsCurrent      bool     `json:"is_current"`
	AllProjects    []string `json:"all_projects"`
}

// StatusResponse is the generic {status, message} body (DELETE /clear).
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// IndexRequest is the POST /index body. ForceReindex is always serialized so
// a plain start states its non-destructive intent explicitly.
type IndexRequest struct {
	ProjectPath    string   `json:"project_path"`
	FileExtensions []string `json:"file_extensions,omitempty"`
	Model          string   `json:"model,omitempty"`
	ForceReindex   bool     `json:"force_reindex"`
}

// IndexResponse is the POST /index response. Progress and CurrentFile are
// only present on backends that report them.
type IndexResponse struct {
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	ProjectPath    string   `json:"project_path"`
	FileExtensions []string `json:"file_extensions"`
	EmbeddingModel string   `json:"embedding_model"`
	TotalProjects  int      `json:"total_projects"`
	Progress       *float64 `json:"progress,omitempty"`
	CurrentFile    string   `json:"current_file,omitempty"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query           string `json:"query"`
	MaxResults      int    `json:"max_results,omitempty"`
	IncludeMetadata bool   `json:"include_metadata"`
	ProjectPath     string `json:"project_path,omitempty"`
}

// QueryResult is the POST /query response.
type QueryResult struct {
	OptimizedPrompt string         `json:"optimized_prompt"`
	ContextChunks   int            `json:"context_chunks"`
	TokenCount      int            `json:"token_count"`
	Metadata        *QueryMetadata `json:"metadata,omitempty"`
}

// QueryMetadata accompanies a QueryResult when include_metadata is set.
type QueryMetadata struct {
	ProjectRoot       string   `json:"project_root"`
	QueriedProject    string   `json:"queried_project"`
	IndexedFiles      int      `json:"indexed_files"`
	TotalChunks       int      `json:"total_chunks"`
	EmbeddingModel    string   `json:"embedding_model"`
	AvailableProjects []string `json:"available_projects"`
}

// ModelChangeRequest is the POST /projects/model/change body.
type ModelChangeRequest struct {
	Model       string `json:"model"`
	AutoReindex bool   `json:"auto_reindex"`
}

// ModelChangeResponse is backend-defined; only "status" and "message" are
// read when present.
type ModelChangeResponse map[string]any

// Status returns the "status" field, or "".
func (r ModelChangeResponse) Status() string {
	s, _ := r["status"].(string)
	return s
}

// Message returns the "message" field, or "".
func (r ModelChangeResponse) Message() string {
	s, _ := r["message"].(string)
	return s
}

// Health is the GET /health response.
type Health struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	IndexedProjects int      `json:"indexed_projects"`
	CurrentProject  string   `json:"current_project"`
	Projects        []string `json:"projects"`
	VectorDBStatus  string   `json:"vector_db_status"`
}
