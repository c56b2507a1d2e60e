package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/otel"
	"github.com/abelbrown/ragdeck/internal/session"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type focus int

const (
	focusProjects focus = iota
	focusSearch
)

type mode int

const (
	modeBrowse mode = iota
	modeModelPicker
	modeConfirmModel
	modeConfirmClear
)

// AppConfig wires App to the outside world.
// IMPORTANT: App does NOT hold the API client or the session. Every side
// effect is a tea.Cmd built by one of these factories; a nil factory
// disables the feature.
type AppConfig struct {
	LoadProjects       func() tea.Cmd
	SelectProject      func(path string) tea.Cmd
	LoadStats          func(path string) tea.Cmd
	StartIndex         func(path string, force bool) tea.Cmd
	LoadModels         func(path string) tea.Cmd
	RequestModelChange func(path, model string) tea.Cmd
	ApplyModelChange   func(pc session.PendingChange) tea.Cmd
	Search             func(q session.Query) tea.Cmd
	ClearProject       func(path string) tea.Cmd
	CheckHealth        func() tea.Cmd

	MaxResults      int
	IncludeMetadata bool

	Obs ObsConfig
}

// ObsConfig carries the observability sinks. Both may be nil.
type ObsConfig struct {
	Ring   *otel.RingBuffer
	Logger *otel.Logger
}

// App is the root Bubble Tea model.
type App struct {
	cfg AppConfig

	projects []api.Project
	current  string
	cursor   int
	stats    map[string]api.ProjectStats
	busy     map[string]bool // paths with an index or model job started here

	health    api.Health
	healthErr error

	focus        focus
	mode         mode
	models       []string
	modelPath    string
	modelCurrent string
	modelCursor  int
	decision     session.Decision
	clearTarget  string

	input     textinput.Model
	spinner   spinner.Model
	results   viewport.Model
	help      help.Model
	pending   int // searches in flight
	latest    session.Result
	hasResult bool

	status       string
	err          error
	width        int
	height       int
	ready        bool
	loading      bool
	debugVisible bool
}

// NewApp creates an App wired through cfg.
func NewApp(cfg AppConfig) App {
	if cfg.MaxResults == 0 {
		cfg.MaxResults = session.DefaultMaxResults
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about the current project..."
	ti.Prompt = "/ "
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = IndexingBadge

	return App{
		cfg:     cfg,
		stats:   make(map[string]api.ProjectStats),
		busy:    make(map[string]bool),
		input:   ti,
		spinner: sp,
		results: viewport.New(0, 0),
		help:    help.New(),
		loading: cfg.LoadProjects != nil,
	}
}

// Init loads the project list and backend health.
func (a App) Init() tea.Cmd {
	var cmds []tea.Cmd
	if a.cfg.LoadProjects != nil {
		cmds = append(cmds, a.cfg.LoadProjects())
	}
	if a.cfg.CheckHealth != nil {
		cmds = append(cmds, a.cfg.CheckHealth())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if otel.TraceEnabled() {
		a.cfg.Obs.Logger.Debug(otel.KindMsgReceived, "ui", fmt.Sprintf("%T", msg))
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()
		return a, nil

	case spinner.TickMsg:
		if a.pending == 0 && len(a.busy) == 0 {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case ProjectsLoaded:
		a.loading = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.setProjects(msg.Projects, msg.Current)
		return a, a.loadSelectedStats()

	case ProjectSelected:
		if msg.Err != nil && msg.Projects == nil {
			a.err = msg.Err
			return a, nil
		}
		if msg.Err != nil {
			a.err = msg.Err
		} else {
			a.status = msg.Message
		}
		a.setProjects(msg.Projects, msg.Current)
		return a, a.loadStats(msg.Path)

	case StatsLoaded:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.stats[msg.Path] = msg.Stats
		return a, nil

	case IndexFinished:
		a.settleBusy(msg.Path, msg.Err)
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.status = fmt.Sprintf("Indexed %s", msg.Path)
		if msg.Job.Message != "" {
			a.status = msg.Job.Message
		}
		return a, a.loadStats(msg.Path)

	case JobSettled:
		if msg.Projects != nil {
			a.setProjects(msg.Projects, msg.Current)
		}
		return a, nil

	case ModelsLoaded:
		if msg.Path != a.modelPath || a.mode != modeModelPicker {
			return a, nil
		}
		if msg.Err != nil {
			a.err = msg.Err
			a.mode = modeBrowse
			return a, nil
		}
		a.models = msg.Info.Available
		a.modelCurrent = msg.Info.Current
		a.modelCursor = 0
		for i, m := range a.models {
			if m == a.modelCurrent {
				a.modelCursor = i
			}
		}
		return a, nil

	case ModelDecided:
		if msg.Err != nil {
			a.err = msg.Err
			a.mode = modeBrowse
			return a, nil
		}
		if msg.Decision.Kind == session.NoOp {
			a.status = fmt.Sprintf("%s already uses %s", msg.Decision.Path, msg.Decision.CurrentModel)
			a.mode = modeBrowse
			return a, nil
		}
		a.decision = msg.Decision
		a.mode = modeConfirmModel
		return a, nil

	case ModelChanged:
		a.settleBusy(msg.Path, msg.Err)
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.status = fmt.Sprintf("Model changed to %s, project reindexed", msg.Job.Model)
		return a, a.loadStats(msg.Path)

	case SearchFinished:
		if a.pending > 0 {
			a.pending--
		}
		if errors.Is(msg.Err, session.ErrSuperseded) {
			return a, nil
		}
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		if a.hasResult && msg.Result.Seq < a.latest.Seq {
			return a, nil
		}
		a.latest = msg.Result
		a.hasResult = true
		a.results.SetContent(renderResult(a.latest, a.results.Width))
		a.results.GotoTop()
		return a, nil

	case ProjectCleared:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		delete(a.stats, msg.Path)
		a.status = msg.Message
		if a.cfg.LoadProjects != nil {
			return a, a.cfg.LoadProjects()
		}
		return a, nil

	case HealthLoaded:
		a.health = msg.Health
		a.healthErr = msg.Err
		return a, nil
	}

	return a, nil
}

// handleKeyMsg routes keys by mode, then by focus.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.cfg.Obs.Logger.Debug(otel.KindKeyPress, "ui", msg.String())

	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.mode {
	case modeModelPicker:
		return a.handlePickerKey(msg)
	case modeConfirmModel:
		return a.handleConfirmModelKey(msg)
	case modeConfirmClear:
		return a.handleConfirmClearKey(msg)
	}

	if key.Matches(msg, keys.Focus) {
		if a.focus == focusProjects {
			a.focus = focusSearch
			return a, a.input.Focus()
		}
		a.focus = focusProjects
		a.input.Blur()
		return a, nil
	}

	if a.focus == focusSearch {
		return a.handleSearchKey(msg)
	}

	// Clear any existing error or status on key press
	a.err = nil
	a.status = ""

	switch {
	case key.Matches(msg, keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, keys.Debug):
		a.debugVisible = !a.debugVisible
		return a, nil

	case key.Matches(msg, keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil

	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.projects)-1 {
			a.cursor++
		}
		return a, a.loadSelectedStats()

	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
		return a, a.loadSelectedStats()

	case key.Matches(msg, keys.Enter):
		path := a.selectedPath()
		if path == "" || a.cfg.SelectProject == nil {
			return a, nil
		}
		return a, a.cfg.SelectProject(path)

	case key.Matches(msg, keys.Index):
		return a.startIndex(false)

	case key.Matches(msg, keys.Reindex):
		return a.startIndex(true)

	case key.Matches(msg, keys.Model):
		path := a.selectedPath()
		if path == "" || a.cfg.LoadModels == nil {
			return a, nil
		}
		if a.busy[path] {
			a.err = api.Validation("cannot change the model of %s while it is indexing", path)
			return a, nil
		}
		a.mode = modeModelPicker
		a.modelPath = path
		a.models = nil
		a.modelCurrent = ""
		return a, a.cfg.LoadModels(path)

	case key.Matches(msg, keys.Clear):
		path := a.selectedPath()
		if path == "" || a.cfg.ClearProject == nil {
			return a, nil
		}
		if a.busy[path] {
			a.err = api.Validation("cannot clear %s while it is indexing", path)
			return a, nil
		}
		a.clearTarget = path
		a.mode = modeConfirmClear
		return a, nil

	case key.Matches(msg, keys.Refresh):
		var cmds []tea.Cmd
		if a.cfg.LoadProjects != nil {
			a.loading = true
			cmds = append(cmds, a.cfg.LoadProjects())
		}
		if a.cfg.CheckHealth != nil {
			cmds = append(cmds, a.cfg.CheckHealth())
		}
		return a, tea.Batch(cmds...)
	}

	return a, nil
}

func (a App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.focus = focusProjects
		a.input.Blur()
		return a, nil
	case tea.KeyEnter:
		return a.submitSearch()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		a.results, cmd = a.results.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submitSearch issues the query in the input box. Disabled while a query
// is in flight.
func (a App) submitSearch() (tea.Model, tea.Cmd) {
	if a.pending > 0 || a.cfg.Search == nil {
		return a, nil
	}
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		a.err = api.Validation("query must not be empty")
		return a, nil
	}
	a.err = nil
	a.pending++
	q := session.Query{
		Text:            text,
		MaxResults:      a.cfg.MaxResults,
		IncludeMetadata: a.cfg.IncludeMetadata,
	}
	return a, tea.Batch(a.cfg.Search(q), a.spinner.Tick)
}

func (a App) startIndex(force bool) (tea.Model, tea.Cmd) {
	path := a.selectedPath()
	if path == "" || a.cfg.StartIndex == nil {
		return a, nil
	}
	if a.busy[path] {
		a.err = api.Validation("indexing already in progress for %s", path)
		return a, nil
	}
	a.busy[path] = true
	return a, tea.Batch(a.cfg.StartIndex(path, force), a.spinner.Tick)
}

func (a App) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.No):
		a.mode = modeBrowse
		return a, nil
	case key.Matches(msg, keys.Down):
		if a.modelCursor < len(a.models)-1 {
			a.modelCursor++
		}
	case key.Matches(msg, keys.Up):
		if a.modelCursor > 0 {
			a.modelCursor--
		}
	case key.Matches(msg, keys.Enter):
		if len(a.models) == 0 || a.cfg.RequestModelChange == nil {
			return a, nil
		}
		return a, a.cfg.RequestModelChange(a.modelPath, a.models[a.modelCursor])
	}
	return a, nil
}

func (a App) handleConfirmModelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Yes):
		a.mode = modeBrowse
		pc, err := a.decision.Confirm()
		if err != nil {
			a.err = err
			return a, nil
		}
		a.decision = session.Decision{}
		if a.cfg.ApplyModelChange == nil {
			return a, nil
		}
		if a.busy[pc.Path()] {
			a.err = api.Validation("cannot change the model of %s while it is indexing", pc.Path())
			return a, nil
		}
		a.busy[pc.Path()] = true
		a.status = fmt.Sprintf("Changing %s to %s...", pc.Path(), pc.Model())
		return a, tea.Batch(a.cfg.ApplyModelChange(pc), a.spinner.Tick)
	case key.Matches(msg, keys.No):
		a.mode = modeBrowse
		a.decision = session.Decision{}
		a.status = "Model change cancelled"
	}
	return a, nil
}

func (a App) handleConfirmClearKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Yes):
		a.mode = modeBrowse
		path := a.clearTarget
		a.clearTarget = ""
		return a, a.cfg.ClearProject(path)
	case key.Matches(msg, keys.No):
		a.mode = modeBrowse
		a.clearTarget = ""
		a.status = "Clear cancelled"
	}
	return a, nil
}

// settleBusy clears the busy flag when a job started here returns. A
// rejection because another job is outstanding leaves that job's flag set.
func (a *App) settleBusy(path string, err error) {
	if errors.Is(err, session.ErrJobOutstanding) {
		return
	}
	delete(a.busy, path)
}

// setProjects replaces the list, keeping the cursor on the same path when
// it still exists.
func (a *App) setProjects(projects []api.Project, current string) {
	selected := a.selectedPath()
	a.projects = projects
	a.current = current
	a.cursor = 0
	for i, p := range projects {
		if p.Path == selected {
			a.cursor = i
			return
		}
	}
	for i, p := range projects {
		if p.Path == current {
			a.cursor = i
		}
	}
}

func (a App) selectedPath() string {
	if a.cursor < 0 || a.cursor >= len(a.projects) {
		return ""
	}
	return a.projects[a.cursor].Path
}

func (a App) loadStats(path string) tea.Cmd {
	if path == "" || a.cfg.LoadStats == nil {
		return nil
	}
	return a.cfg.LoadStats(path)
}

func (a App) loadSelectedStats() tea.Cmd {
	path := a.selectedPath()
	if _, ok := a.stats[path]; ok {
		return nil
	}
	return a.loadStats(path)
}

// resize lays out the search input and result viewport.
func (a *App) resize() {
	_, right := a.paneWidths()
	a.input.Width = right - 8
	a.results.Width = right - 4
	a.results.Height = a.bodyHeight() - 5
	if a.results.Height < 1 {
		a.results.Height = 1
	}
	a.help.Width = a.width
	if a.hasResult {
		a.results.SetContent(renderResult(a.latest, a.results.Width))
	}
}

// Cursor returns the project cursor (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Projects returns the displayed projects (for testing).
func (a App) Projects() []api.Project {
	return a.projects
}
