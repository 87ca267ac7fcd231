package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dialectatlas/tonelab/internal/job"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#005F87"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000")).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#005F87")).
			Padding(0, 1).
			Width(60)
)

// renderMonitor renders the live job view.
func renderMonitor(m Model) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("tonelab - acoustic analysis"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("job %s  [%s]", shortID(m.JobID), m.Status)))
	b.WriteString("\n\n")

	b.WriteString(renderModuleList(m))
	b.WriteString("\n")
	b.WriteString(renderProgressBox(m))

	return b.String()
}

// renderModuleList renders one row per requested module.
func renderModuleList(m Model) string {
	var b strings.Builder
	for _, mod := range m.Modules {
		switch {
		case mod.State == ModuleDone:
			b.WriteString(fmt.Sprintf(" %s %s\n", doneStyle.Render("✓"), mod.Name))
		case m.Stage == mod.Name:
			b.WriteString(fmt.Sprintf(" %s %s\n", activeStyle.Render("⚙"), mod.Name))
		default:
			b.WriteString(fmt.Sprintf(" %s %s\n", pendingStyle.Render("○"), mod.Name))
		}
	}
	return b.String()
}

// renderProgressBox renders the progress bar with stage and elapsed time.
func renderProgressBox(m Model) string {
	var content strings.Builder

	stage := m.Stage
	if stage == "" {
		stage = "waiting"
	}
	content.WriteString(fmt.Sprintf("Stage: %s\n", stage))
	content.WriteString(renderProgressBar(m.Progress, 40))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("Elapsed: %.1fs", time.Since(m.StartTime).Seconds()))

	return boxStyle.Render(content.String())
}

// renderProgressBar renders a fixed-width unicode progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %3.0f%%", bar, progress*100)
}

// renderCompletion renders the final state before the program exits.
func renderCompletion(m Model) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("tonelab - acoustic analysis"))
	b.WriteString("\n\n")

	switch {
	case m.Err != nil:
		b.WriteString(fmt.Sprintf(" %s job %s failed: %v\n", errorStyle.Render("✗"), shortID(m.JobID), m.Err))
	case m.Status == job.StatusCancelled:
		b.WriteString(fmt.Sprintf(" %s job %s cancelled\n", activeStyle.Render("•"), shortID(m.JobID)))
	default:
		b.WriteString(fmt.Sprintf(" %s job %s succeeded in %.1fs\n",
			doneStyle.Render("✓"), shortID(m.JobID), time.Since(m.StartTime).Seconds()))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
