package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debugVisible {
		return debugOverlay(a.cfg.Obs.Ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	var body string
	switch a.mode {
	case modeModelPicker:
		body = a.centered(a.renderPicker())
	case modeConfirmModel:
		body = a.centered(a.renderConfirmModel())
	case modeConfirmClear:
		body = a.centered(a.renderConfirmClear())
	default:
		left, right := a.paneWidths()
		body = lipgloss.JoinHorizontal(lipgloss.Top, a.renderLeft(left), a.renderSearch(right))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		body,
		a.renderMessage(),
		a.renderStatusBar(),
	)
}

// paneWidths splits the terminal 2:3 between projects and search.
func (a App) paneWidths() (int, int) {
	left := a.width * 2 / 5
	if left < 28 {
		left = 28
	}
	right := a.width - left
	if right < 20 {
		right = 20
	}
	return left, right
}

// bodyHeight is the height left after header, message line and status bar.
func (a App) bodyHeight() int {
	h := a.height - 3
	if a.help.ShowAll {
		h -= 3
	}
	if h < 4 {
		h = 4
	}
	return h
}

func (a App) centered(s string) string {
	return lipgloss.Place(a.width, a.bodyHeight(), lipgloss.Center, lipgloss.Center, s)
}

func (a App) renderHeader() string {
	title := "ragdeck"
	var health string
	switch {
	case a.healthErr != nil:
		health = "backend: " + api.Message(a.healthErr)
	case a.health.Status != "":
		health = fmt.Sprintf("backend %s %s · %d projects · db %s",
			a.health.Status, a.health.Version, a.health.IndexedProjects, a.health.VectorDBStatus)
	default:
		health = "backend: checking..."
	}
	pad := a.width - lipgloss.Width(title) - lipgloss.Width(health) - 2
	if pad < 1 {
		pad = 1
	}
	return Header.Width(a.width).Render(title + strings.Repeat(" ", pad) + health)
}

func (a App) renderLeft(width int) string {
	h := a.bodyHeight()
	statsHeight := 8
	listHeight := h - statsHeight
	if listHeight < 3 {
		listHeight = 3
	}

	style := Pane
	if a.focus == focusProjects {
		style = FocusedPane
	}
	list := style.Width(width - 2).Height(listHeight - 2).
		Render(PaneTitle.Render("Projects") + "\n" + a.renderProjects(width-2, listHeight-3))
	stats := Pane.Width(width - 2).Height(statsHeight - 2).
		Render(a.renderStats(width - 4))
	return lipgloss.JoinVertical(lipgloss.Left, list, stats)
}

// renderProjects renders one row per project, scrolled to keep the cursor
// visible.
func (a App) renderProjects(width, height int) string {
	if a.loading && len(a.projects) == 0 {
		return HelpStyle.Render("Loading projects...")
	}
	if len(a.projects) == 0 {
		return HelpStyle.Render("No projects indexed. Use ragctl index <path>.")
	}
	if height < 1 {
		height = 1
	}

	offset := 0
	if a.cursor >= height {
		offset = a.cursor - height + 1
	}

	var b strings.Builder
	for i := offset; i < len(a.projects) && i < offset+height; i++ {
		b.WriteString(a.renderProjectLine(a.projects[i], i == a.cursor, width))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a App) renderProjectLine(p api.Project, selected bool, width int) string {
	mark := "  "
	if p.Path == a.current {
		mark = CurrentBadge.Render("● ")
	}
	if a.busy[p.Path] {
		mark = a.spinner.View() + " "
	}
	counts := fmt.Sprintf("%d files", p.IndexedFiles)
	name := p.Name
	if name == "" {
		name = p.Path
	}
	avail := width - 4 - lipgloss.Width(mark) - len(counts)
	if avail < 4 {
		avail = 4
	}
	name = truncateRunes(name, avail)
	gap := avail - utf8.RuneCountInString(name)
	if gap < 1 {
		gap = 1
	}
	line := mark + name + strings.Repeat(" ", gap) + counts
	if selected {
		return SelectedItem.Render(line)
	}
	return NormalItem.Render(line)
}

// renderStats shows the last known snapshot for the selected project.
// Counts fall back to the project list when /stats has not answered yet.
func (a App) renderStats(width int) string {
	path := a.selectedPath()
	if path == "" {
		return PaneTitle.Render("Stats")
	}
	p, _ := a.project(path)
	st, ok := a.stats[path]
	if !ok {
		st = api.ProjectStats{
			ProjectRoot:    p.Path,
			IndexedFiles:   p.IndexedFiles,
			TotalChunks:    p.TotalChunks,
			EmbeddingModel: p.EmbeddingModel,
		}
	}
	size := st.VectorDBSize
	if size == "" {
		size = "-"
	}
	rows := []string{
		PaneTitle.Render("Stats"),
		Label.Render("Path") + Value.Render(truncateRunes(path, width-12)),
		Label.Render("Files") + Value.Render(fmt.Sprintf("%d", st.IndexedFiles)),
		Label.Render("Chunks") + Value.Render(fmt.Sprintf("%d", st.TotalChunks)),
		Label.Render("Model") + Value.Render(truncateRunes(st.EmbeddingModel, width-12)),
		Label.Render("DB size") + Value.Render(size),
	}
	return strings.Join(rows, "\n")
}

func (a App) project(path string) (api.Project, bool) {
	for _, p := range a.projects {
		if p.Path == path {
			return p, true
		}
	}
	return api.Project{}, false
}

func (a App) renderSearch(width int) string {
	style := Pane
	if a.focus == focusSearch {
		style = FocusedPane
	}
	var content string
	switch {
	case a.pending > 0:
		content = a.spinner.View() + " Searching..."
	case a.hasResult:
		content = a.results.View()
	default:
		content = HelpStyle.Render("Press tab to search. Results show the optimized prompt and its context.")
	}
	inner := PaneTitle.Render("Search") + "\n" + a.input.View() + "\n\n" + content
	return style.Width(width - 2).Height(a.bodyHeight() - 2).Render(inner)
}

// renderResult formats a query result for the viewport.
func renderResult(r session.Result, width int) string {
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	meta := fmt.Sprintf("#%d · %d chunks · %d tokens · %s",
		r.Seq, r.ContextChunks, r.TokenCount, r.Dur.Round(time.Millisecond))
	b.WriteString(ResultMeta.Render(meta))
	b.WriteString("\n")
	if m := r.Metadata; m != nil {
		b.WriteString(ResultMeta.Render(fmt.Sprintf("%s · %d files · %s", m.QueriedProject, m.IndexedFiles, m.EmbeddingModel)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(r.OptimizedPrompt))
	return b.String()
}

func (a App) renderPicker() string {
	title := PaneTitle.Render("Embedding model · " + truncateRunes(a.modelPath, 40))
	var content string
	if a.models == nil {
		content = a.spinner.View() + " Loading models..."
	} else {
		content = renderModelTable(a.models, a.modelCursor, a.modelCurrent, a.width-8)
	}
	hint := StatusBarText.Render("enter: choose · esc: cancel")
	return Modal.Render(title + "\n\n" + content + "\n\n" + hint)
}

func (a App) renderConfirmModel() string {
	d := a.decision
	from := d.CurrentModel
	if from == "" {
		from = "(backend default)"
	}
	lines := []string{
		PaneTitle.Render("Change embedding model?"),
		"",
		Label.Render("Project") + Value.Render(d.Path),
		Label.Render("From") + Value.Render(from),
		Label.Render("To") + Value.Render(d.PendingModel),
	}
	if info, ok := session.LookupModel(d.PendingModel); ok {
		lines = append(lines, Label.Render("") + ResultMeta.Render(fmt.Sprintf("%s · %s · %s", info.Size, info.Speed, info.Quality)))
	}
	lines = append(lines,
		"",
		ModalWarning.Render("This discards the index and reindexes the whole project."),
		"",
		StatusBarKey.Render("y")+StatusBarText.Render(": confirm  ")+StatusBarKey.Render("n")+StatusBarText.Render(": cancel"),
	)
	return Modal.Render(strings.Join(lines, "\n"))
}

func (a App) renderConfirmClear() string {
	lines := []string{
		PaneTitle.Render("Clear project index?"),
		"",
		Label.Render("Project") + Value.Render(a.clearTarget),
		"",
		ModalWarning.Render("The backend deletes every indexed chunk for this project."),
		"",
		StatusBarKey.Render("y") + StatusBarText.Render(": clear  ") + StatusBarKey.Render("n") + StatusBarText.Render(": cancel"),
	}
	return Modal.Render(strings.Join(lines, "\n"))
}

// renderMessage shows the current error, else the last status.
func (a App) renderMessage() string {
	switch {
	case a.err != nil:
		return ErrorStyle.Width(a.width).Render("Error: " + api.Message(a.err))
	case a.status != "":
		return InfoStyle.Width(a.width).Render(a.status)
	}
	return ""
}

func (a App) renderStatusBar() string {
	left := fmt.Sprintf(" %d projects ", len(a.projects))
	if a.loading {
		left = " Loading... "
	}
	right := a.help.View(keys)
	pad := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 0 {
		pad = 0
	}
	return StatusBar.Width(a.width).Render(left + strings.Repeat(" ", pad) + right)
}

// truncateRunes shortens s to at most n runes, marking the cut with "…".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
