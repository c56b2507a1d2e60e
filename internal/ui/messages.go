// Package ui provides the Bubble Tea TUI for ragdeck.
package ui

import (
	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/session"
)

// ProjectsLoaded is sent when the project list has been fetched.
type ProjectsLoaded struct {
	Projects []api.Project
	Current  string
	Err      error
}

// ProjectSelected is sent when a switch settles. Projects/Current are the
// registry snapshot after the follow-up refresh.
type ProjectSelected struct {
	Path     string
	Message  string
	Projects []api.Project
	Current  string
	Err      error
}

// StatsLoaded carries a /stats snapshot for one project.
type StatsLoaded struct {
	Path  string
	Stats api.ProjectStats
	Err   error
}

// IndexFinished is sent when an index or reindex request returns.
type IndexFinished struct {
	Path string
	Job  session.Job
	Err  error
}

// JobSettled is forwarded from the session after its registry refresh.
type JobSettled struct {
	Job      session.Job
	Projects []api.Project
	Current  string
}

// ModelsLoaded carries the picker contents for one project.
type ModelsLoaded struct {
	Path string
	Info session.ModelInfo
	Err  error
}

// ModelDecided carries the decision for a requested model change.
type ModelDecided struct {
	Decision session.Decision
	Err      error
}

// ModelChanged is sent when a confirmed model change settles.
type ModelChanged struct {
	Path string
	Job  session.Job
	Err  error
}

// SearchFinished carries a query outcome. Err may be session.ErrSuperseded.
type SearchFinished struct {
	Result session.Result
	Err    error
}

// ProjectCleared is sent when a clear request returns.
type ProjectCleared struct {
	Path    string
	Message string
	Err     error
}

// HealthLoaded carries the /health report.
type HealthLoaded struct {
	Health api.Health
	Err    error
}
