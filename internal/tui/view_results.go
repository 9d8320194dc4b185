package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/sweepbox/sweepbox/internal/scan"
)

// senderItem wraps SenderTally to customize list display.
type senderItem struct {
	scan.SenderTally
	selected bool
}

func (s senderItem) FilterValue() string { return s.Address }
func (s senderItem) Title() string {
	checkbox := "[ ] "
	if s.selected {
		checkbox = "[x] "
	}
	return checkbox + s.Address
}
func (s senderItem) Description() string {
	if s.Count == 1 {
		return "1 message"
	}
	return fmt.Sprintf("%d messages", s.Count)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			PaddingBottom(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	restStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)

var shareColors = []lipgloss.Color{"205", "39", "214", "78", "141"}

func loginFooter() string {
	return footerStyle.Render("tab: switch field  enter: connect  esc: quit")
}

func resultsFooter() string {
	return footerStyle.Render("space: select  a: all  n: none  d: trash  x: delete forever  r: rescan  q: quit")
}

func progressFooter() string {
	return footerStyle.Render("q: quit")
}

func talliesToItems(tallies []scan.SenderTally, selected map[string]bool) []list.Item {
	items := make([]list.Item, len(tallies))
	for i, tally := range tallies {
		items[i] = senderItem{SenderTally: tally, selected: selected[tally.Address]}
	}
	return items
}

// shareBar renders the heaviest senders as colored segments sized by their
// share of the folder, with the remainder dimmed. Tallies arrive sorted by
// count, so once one sender rounds to zero cells the rest do too.
func shareBar(tallies []scan.SenderTally, total, width int) string {
	if total <= 0 || width < len(shareColors) {
		return ""
	}
	var b strings.Builder
	used := 0
	for i, tally := range tallies {
		if i == len(shareColors) {
			break
		}
		cells := tally.Count * width / total
		if cells == 0 {
			break
		}
		b.WriteString(lipgloss.NewStyle().Foreground(shareColors[i]).Render(strings.Repeat("█", cells)))
		used += cells
	}
	if used < width {
		b.WriteString(restStyle.Render(strings.Repeat("░", width-used)))
	}
	return b.String()
}
