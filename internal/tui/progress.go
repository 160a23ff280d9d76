package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	tickInterval = 100 * time.Millisecond
	padding      = 2
	maxBarWidth  = 80
)

// Counter is the live machine count of a running search.
type Counter interface {
	Done() uint64
	Total() uint64
}

type tickMsg time.Time

// doneMsg is sent once the search returns.
type doneMsg struct{ err error }

type keyMap struct {
	Quit key.Binding
}

func (km keyMap) ShortHelp() []key.Binding { return []key.Binding{km.Quit} }

func (km keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{km.ShortHelp()} }

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "cancel search"),
		),
	}
}

// ProgressModel shows a progress bar for a running search.
type ProgressModel struct {
	counter Counter
	cancel  func()
	title   string
	styles  *Styles
	bar     progress.Model
	help    help.Model
	keys    keyMap
	now     func() time.Time
	start   time.Time

	done      bool
	cancelled bool
	err       error
}

// NewProgressModel creates a progress view polling counter. cancel is
// called when the user quits before the search is done.
func NewProgressModel(counter Counter, title string, cancel func()) ProgressModel {
	styles := DefaultStyles()
	h := help.New()
	h.Styles.ShortKey = styles.Heading
	h.Styles.ShortDesc = styles.Help
	return ProgressModel{
		counter: counter,
		cancel:  cancel,
		title:   title,
		styles:  styles,
		bar:     progress.New(progress.WithGradient(ColorBlue, ColorGreen)),
		help:    h,
		keys:    defaultKeyMap(),
		now:     time.Now,
		start:   time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && !m.done {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-padding*2-4, maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tea.Batch(tick(), m.bar.SetPercent(m.fraction()))

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m ProgressModel) fraction() float64 {
	total := m.counter.Total()
	if total == 0 {
		return 1
	}
	return float64(m.counter.Done()) / float64(total)
}

// View implements tea.Model
func (m ProgressModel) View() string {
	var b strings.Builder
	pad := strings.Repeat(" ", padding)

	b.WriteString(pad + m.styles.Title.Render(m.title) + "\n\n")
	if m.done || m.cancelled {
		b.WriteString(pad + m.bar.ViewAs(m.fraction()) + "\n\n")
	} else {
		b.WriteString(pad + m.bar.View() + "\n\n")
	}
	b.WriteString(pad + m.styles.Text.Render(fmt.Sprintf("%d / %d machines, %s elapsed",
		m.counter.Done(), m.counter.Total(), m.now().Sub(m.start).Round(time.Second))))
	b.WriteString("\n")

	switch {
	case m.cancelled:
		b.WriteString("\n" + pad + m.styles.StatusCancelled.Render("CANCELLED") + "\n")
	case m.done && m.err != nil:
		b.WriteString("\n" + pad + m.styles.StatusCancelled.Render("FAILED") + " " + m.err.Error() + "\n")
	case m.done:
		b.WriteString("\n" + pad + m.styles.StatusDone.Render("DONE") + "\n")
	default:
		b.WriteString("\n" + pad + m.help.View(m.keys) + "\n")
	}
	return b.String()
}

// Cancelled reports whether the user quit before the search finished.
func (m ProgressModel) Cancelled() bool { return m.cancelled }
