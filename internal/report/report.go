// Package report renders a sync run's summary for humans.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/robby/boardsync/internal/reconcile"
)

const wrapWidth = 80

var (
	// titleStyle is used for the summary heading.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")) // Purple

	// okStyle is used for counts of successful work.
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")) // Green

	// errorStyle is used for error counts and failure details.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// mutedStyle is used for skips and metadata.
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dark gray
)

// Render formats a run summary as a multi-line string, one stanza of
// counts plus a line per item that changed or failed. Unchanged items
// are only counted, not listed.
func Render(s reconcile.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("boardsync run "+s.RunID) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("examined %d item(s) in %s", s.Examined, s.Duration.Round(10*time.Millisecond))) + "\n\n")

	b.WriteString(okStyle.Render(fmt.Sprintf("added %d", s.Added)))
	b.WriteString(okStyle.Render(fmt.Sprintf("  updated %d", s.Updated)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  skipped %d", s.Skipped)))
	if s.Errors > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  errors %d", s.Errors)))
	} else {
		b.WriteString(mutedStyle.Render("  errors 0"))
	}
	if s.Warnings > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  warnings %d", s.Warnings)))
	}
	b.WriteString("\n")

	if s.LinkedProcessed > 0 || s.LinkedErrors > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("linked issues: %d synced, %d failed", s.LinkedProcessed, s.LinkedErrors)) + "\n")
	}

	for _, item := range s.Items {
		switch {
		case item.Err != nil:
			b.WriteString("\n" + errorStyle.Render("✗ "+item.Ref) + "\n")
			b.WriteString(wordwrap.String("  "+item.Err.Error(), wrapWidth) + "\n")
		case len(item.Reasons) > 0:
			b.WriteString("\n" + okStyle.Render("✓ "+item.Ref) + "\n")
			for _, reason := range item.Reasons {
				b.WriteString(wordwrap.String("  "+reason, wrapWidth) + "\n")
			}
		}
	}

	return b.String()
}
