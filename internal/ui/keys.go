package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Focus   key.Binding
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Index   key.Binding
	Reindex key.Binding
	Model   key.Binding
	Yes     key.Binding
	No      key.Binding
	Clear   key.Binding
	Refresh key.Binding
	Debug   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Focus:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
	Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Index:   key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "index")),
	Reindex: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reindex")),
	Model:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "model")),
	Yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
	No:      key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
	Clear:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Debug:   key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "debug")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Enter, k.Index, k.Model, k.Clear, k.Refresh, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Focus, k.Up, k.Down, k.Enter},
		{k.Index, k.Reindex, k.Model, k.Clear},
		{k.Yes, k.No, k.Refresh, k.Debug, k.Quit},
	}
}
