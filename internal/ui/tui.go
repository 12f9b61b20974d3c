// ABOUTME: TUI program wrapper for the stress dashboard
// ABOUTME: Forwards session updates into the bubbletea program without blocking
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Dashboard runs the bubbletea program
type Dashboard struct {
	program  *tea.Program
	quitChan chan struct{}
}

// NewDashboard creates a dashboard titled title
func NewDashboard(title string, opts ...tea.ProgramOption) *Dashboard {
	quit := make(chan struct{}, 1)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Dashboard{
		program:  tea.NewProgram(NewModel(title, quit), opts...),
		quitChan: quit,
	}
}

// Run blocks until the user quits or Stop is called
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Update replaces one session row
func (d *Dashboard) Update(status SessionStatus) {
	d.program.Send(StatusMsg(status))
}

// Finish shows the final result
func (d *Dashboard) Finish(err error) {
	d.program.Send(FinishedMsg{Err: err})
}

// Stop ends the program
func (d *Dashboard) Stop() {
	d.program.Quit()
}

// QuitChan signals when the user wants to quit
func (d *Dashboard) QuitChan() <-chan struct{} {
	return d.quitChan
}
