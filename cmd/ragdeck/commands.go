package main

import (
	"context"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/session"
	"github.com/abelbrown/ragdeck/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

// commands builds the tea.Cmd factories the TUI runs. All backend I/O
// goes through the session except the health check.
type commands struct {
	ctx        context.Context
	sess       *session.Session
	client     *api.Client
	extensions []string
}

func (c commands) appConfig() ui.AppConfig {
	return ui.AppConfig{
		LoadProjects:       c.loadProjects,
		SelectProject:      c.selectProject,
		LoadStats:          c.loadStats,
		StartIndex:         c.startIndex,
		LoadModels:         c.loadModels,
		RequestModelChange: c.requestModelChange,
		ApplyModelChange:   c.applyModelChange,
		Search:             c.search,
		ClearProject:       c.clearProject,
		CheckHealth:        c.checkHealth,
	}
}

func (c commands) loadProjects() tea.Cmd {
	return func() tea.Msg {
		list, err := c.sess.Registry.List(c.ctx)
		return ui.ProjectsLoaded{Projects: list.Projects, Current: list.CurrentProject, Err: err}
	}
}

func (c commands) selectProject(path string) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.sess.Registry.Select(c.ctx, path)
		msg := ui.ProjectSelected{Path: path, Message: resp.Message, Err: err}
		if session.SwitchConfirmed(err) {
			msg.Projects = c.sess.Registry.Projects()
			msg.Current = c.sess.Registry.Current()
		}
		return msg
	}
}

func (c commands) loadStats(path string) tea.Cmd {
	return func() tea.Msg {
		st, err := c.sess.Registry.Stats(c.ctx, path)
		return ui.StatsLoaded{Path: path, Stats: st, Err: err}
	}
}

func (c commands) startIndex(path string, force bool) tea.Cmd {
	return func() tea.Msg {
		job, err := c.sess.Indexer.Start(c.ctx, session.StartRequest{
			Path:       path,
			Extensions: c.extensions,
			Force:      force,
		})
		return ui.IndexFinished{Path: path, Job: job, Err: err}
	}
}

func (c commands) loadModels(path string) tea.Cmd {
	return func() tea.Msg {
		info, err := c.sess.Models.Load(c.ctx, path)
		return ui.ModelsLoaded{Path: path, Info: info, Err: err}
	}
}

func (c commands) requestModelChange(path, model string) tea.Cmd {
	return func() tea.Msg {
		d, err := c.sess.Models.RequestChange(c.ctx, path, model)
		return ui.ModelDecided{Decision: d, Err: err}
	}
}

func (c commands) applyModelChange(pc session.PendingChange) tea.Cmd {
	return func() tea.Msg {
		job, err := c.sess.Indexer.ApplyModelChange(c.ctx, pc)
		return ui.ModelChanged{Path: pc.Path(), Job: job, Err: err}
	}
}

func (c commands) search(q session.Query) tea.Cmd {
	return func() tea.Msg {
		res, err := c.sess.Queries.Search(c.ctx, q)
		return ui.SearchFinished{Result: res, Err: err}
	}
}

func (c commands) clearProject(path string) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.sess.Registry.Clear(c.ctx, path)
		return ui.ProjectCleared{Path: path, Message: resp.Message, Err: err}
	}
}

func (c commands) checkHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := c.client.Health(c.ctx)
		return ui.HealthLoaded{Health: h, Err: err}
	}
}

// settledMsg converts a settled job into the message the TUI expects,
// carrying the registry snapshot taken after the session's refresh.
func settledMsg(sess *session.Session, j session.Job) ui.JobSettled {
	return ui.JobSettled{
		Job:      j,
		Projects: sess.Registry.Projects(),
		Current:  sess.Registry.Current(),
	}
}
