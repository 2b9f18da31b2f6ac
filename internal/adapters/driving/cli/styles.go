package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// styles renders command output. Colours are only used when writing to
// a terminal so piped output stays plain.
type styles struct {
	colour   bool
	title    lipgloss.Style
	header   lipgloss.Style
	muted    lipgloss.Style
	active   lipgloss.Style
	complete lipgloss.Style
	failed   lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	s := &styles{
		title:    lipgloss.NewStyle(),
		header:   lipgloss.NewStyle(),
		muted:    lipgloss.NewStyle(),
		active:   lipgloss.NewStyle(),
		complete: lipgloss.NewStyle(),
		failed:   lipgloss.NewStyle(),
	}
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return s
	}

	s.colour = true
	s.title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	s.header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CDD6F4"))
	s.muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	s.active = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	s.complete = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	s.failed = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	return s
}

func (s *styles) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if s.colour {
		t = t.BorderStyle(s.muted).StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String()
}

// status colours a task status.
func (s *styles) status(st domain.TaskStatus) string {
	switch st {
	case domain.TaskStatusComplete:
		return s.complete.Render(string(st))
	case domain.TaskStatusFailed:
		return s.failed.Render(string(st))
	case domain.TaskStatusActive:
		return s.active.Render(string(st))
	default:
		return s.muted.Render(string(st))
	}
}
