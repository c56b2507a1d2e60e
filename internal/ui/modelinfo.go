package ui

import (
	"fmt"
	"strings"

	"github.com/abelbrown/ragdeck/internal/session"
)

// renderModelTable renders the picker rows. cursor marks the highlighted
// row; current gets a bullet.
func renderModelTable(models []string, cursor int, current string, width int) string {
	nameWidth := 0
	for _, m := range models {
		if n := len([]rune(m)); n > nameWidth {
			nameWidth = n
		}
	}
	if limit := width - 48; nameWidth > limit && limit > 12 {
		nameWidth = limit
	}

	var b strings.Builder
	header := fmt.Sprintf("  %-*s  %-7s %-7s %-13s %s", nameWidth, "Model", "Size", "Speed", "Language", "Quality")
	b.WriteString(TableHeader.Render(header))
	b.WriteString("\n")

	for i, m := range models {
		info, _ := session.LookupModel(m)
		mark := " "
		if m == current {
			mark = "●"
		}
		row := fmt.Sprintf("%s %-*s  %-7s %-7s %-13s %s",
			mark, nameWidth, truncateRunes(m, nameWidth), info.Size, info.Speed, info.Language, info.Quality)
		if i == cursor {
			b.WriteString(SelectedItem.Render(row))
		} else {
			b.WriteString(NormalItem.Render(row))
		}
		b.WriteString("\n")
	}

	if cursor >= 0 && cursor < len(models) {
		if info, ok := session.LookupModel(models[cursor]); ok && info.Note != "" {
			b.WriteString("\n")
			b.WriteString(ResultMeta.Render(info.Note))
		}
	}
	return b.String()
}
