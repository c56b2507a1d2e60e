package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
)

// Header is the top bar: app name and backend health.
var Header = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// PaneTitle labels the project, stats and search panes.
var PaneTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// Pane borders an unfocused pane.
var Pane = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted)

// FocusedPane borders the pane holding keyboard focus.
var FocusedPane = Pane.
	BorderForeground(colorPrimary)

// SelectedItem style for the row under the cursor.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for other rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// CurrentBadge marks the backend's current project.
var CurrentBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// IndexingBadge marks a project with a job in flight.
var IndexingBadge = lipgloss.NewStyle().
	Foreground(colorWarning)

// Label and Value render the stats panel.
var (
	Label = lipgloss.NewStyle().Foreground(colorSecondary).Width(12)
	Value = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// InfoStyle for transient confirmations.
var InfoStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// Modal frames the model picker and confirmation dialogs.
var Modal = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorHighlight).
	Padding(1, 2)

// ModalWarning highlights the destructive part of a confirmation.
var ModalWarning = lipgloss.NewStyle().
	Foreground(colorWarning).
	Bold(true)

// TableHeader styles the model info table header row.
var TableHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorSecondary).
	Underline(true)

// ResultMeta styles the metadata line above a search result.
var ResultMeta = lipgloss.NewStyle().
	Foreground(colorSecondary)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle labels debug overlay sections.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
