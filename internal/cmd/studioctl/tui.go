package studioctl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/louisbranch/portfolio.studio/internal/preload"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1c1c1c")).Background(lipgloss.Color("#f0e2d6")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Faint(true)
	readyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3a7d44"))
)

type frameMsg preload.Progress

type dismissMsg struct{}

// teaPresenter forwards session calls to a running bubbletea program.
type teaPresenter struct {
	send func(tea.Msg)
}

func (teaPresenter) LockScroll()   {}
func (teaPresenter) UnlockScroll() {}

func (p teaPresenter) Render(frame preload.Progress) { p.send(frameMsg(frame)) }
func (p teaPresenter) Dismiss()                      { p.send(dismissMsg{}) }

type model struct {
	site   string
	bar    progress.Model
	frame  preload.Progress
	done   bool
	cancel context.CancelFunc
}

func newModel(site string, cancel context.CancelFunc) model {
	return model{
		site:   site,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel: cancel,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = preload.Progress(msg)
	case dismissMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, 60))
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("preload "+m.site) + "\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.frame.Percent)/100) + "\n")
	label := labelStyle.Render(m.frame.Label)
	if m.frame.Phase != preload.PhaseLoading {
		label = readyStyle.Render(m.frame.Label)
	}
	fmt.Fprintf(&b, "%s  %d/%d\n", label, m.frame.Loaded, m.frame.Total)
	if !m.done {
		b.WriteString(labelStyle.Render("q to stop") + "\n")
	}
	return b.String()
}

// runTUI drives one session inside a bubbletea program. Quitting the view
// cancels the session, which still finalizes and dismisses.
func runTUI(ctx context.Context, cfg preload.Config, route string, out io.Writer) (preload.Progress, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newModel(cfg.Origin, cancel), tea.WithOutput(out))
	cfg.Presenter = teaPresenter{send: prog.Send}
	session, err := preload.New(cfg)
	if err != nil {
		return preload.Progress{}, err
	}

	runErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx, route)
		session.Wait()
		prog.Send(dismissMsg{})
		runErr <- err
	}()

	final, err := prog.Run()
	if err != nil {
		cancel()
		<-runErr
		return preload.Progress{}, fmt.Errorf("run progress view: %w", err)
	}
	sessionErr := <-runErr
	if m, ok := final.(model); ok {
		return m.frame, sessionErr
	}
	return preload.Progress{}, sessionErr
}
