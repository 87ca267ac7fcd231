// Package ui provides the Bubbletea terminal interface: a live monitor
// for one analysis job showing per-module completion and overall progress.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dialectatlas/tonelab/internal/job"
	"github.com/dialectatlas/tonelab/internal/service"
)

// ModuleState is the display state of one requested module.
type ModuleState int

const (
	ModulePending ModuleState = iota
	ModuleDone
)

// ModuleProgress tracks one module's display row.
type ModuleProgress struct {
	Name  string
	State ModuleState
}

// Model is the Bubbletea model for the job monitor.
type Model struct {
	JobID   string
	Modules []ModuleProgress

	Status   job.Status
	Progress float64
	Stage    string
	Err      error

	StartTime time.Time
	Done      bool

	// StatusChan receives snapshots from the polling goroutine.
	StatusChan chan tea.Msg

	Width  int
	Height int
}

// NewModel creates a monitor for one job and its requested modules.
func NewModel(jobID string, modules []string) Model {
	mods := make([]ModuleProgress, len(modules))
	for i, name := range modules {
		mods[i] = ModuleProgress{Name: name}
	}
	return Model{
		JobID:      jobID,
		Modules:    mods,
		Status:     job.StatusQueued,
		StartTime:  time.Now(),
		StatusChan: make(chan tea.Msg, 16),
	}
}

// Init starts listening for status snapshots.
func (m Model) Init() tea.Cmd {
	return waitForStatus(m.StatusChan)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case StatusMsg:
		m.apply(msg.Status)
		return m, waitForStatus(m.StatusChan)

	case JobDoneMsg:
		if msg.Status != nil {
			m.apply(msg.Status)
		}
		m.Err = msg.Err
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one snapshot into the display state. Stage names match
// module names while modules run, so a stage observation marks that
// module complete once progress has moved past it.
func (m *Model) apply(s *service.JobStatus) {
	m.Status = s.Status
	m.Progress = s.Progress
	m.Stage = s.Stage
	if s.Error != nil {
		m.Err = s.Error
	}

	completed := int(s.Progress*float64(len(m.Modules)) + 0.5)
	done := 0
	for i := range m.Modules {
		if done < completed {
			m.Modules[i].State = ModuleDone
			done++
		}
	}
	if s.Status == job.StatusSucceeded {
		for i := range m.Modules {
			m.Modules[i].State = ModuleDone
		}
	}
}

// View renders the monitor.
func (m Model) View() string {
	if m.Done {
		return renderCompletion(m)
	}
	return renderMonitor(m)
}

func waitForStatus(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
