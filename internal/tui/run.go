package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/search"
)

// RunWithProgress runs s while showing a progress bar on out.
// Quitting the view cancels the search, which then returns its
// cancellation error.
func RunWithProgress(ctx context.Context, s *search.Search, out io.Writer) (*aggregate.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	title := fmt.Sprintf("Searching %d-state machines (%s run)", s.Space().States(), s.RunID())
	p := tea.NewProgram(
		NewProgressModel(s.Progress(), title, cancel),
		tea.WithOutput(out),
	)

	var (
		result *aggregate.Result
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, runErr = s.Run(ctx)
		p.Send(doneMsg{err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	<-finished
	return result, runErr
}
