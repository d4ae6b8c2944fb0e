package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"companion/internal/app"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the terminal front end. It owns no domain state: every keypress
// becomes an orchestrator intent and every frame renders a fresh Snapshot.
type Model struct {
	orch   *app.Orchestrator
	events *app.EventLog

	input   textinput.Model
	view    viewport.Model
	spin    spinner.Model
	width   int
	height  int
	ready   bool
	showLog bool
	logErrs bool
	flash   string
}

type opDoneMsg struct {
	flash string
}

func New(orch *app.Orchestrator, events *app.EventLog) *Model {
	ti := textinput.New()
	ti.Placeholder = "Chat, or Ctrl+G to generate a video from this prompt"
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{orch: orch, events: events, input: ti, spin: sp}
}

func (m *Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view = viewport.New(msg.Width, msg.Height-4)
		m.ready = true
		return m, nil

	case opDoneMsg:
		m.flash = msg.flash
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.showLog {
			m.showLog = false
			return m, nil
		}
		return m, tea.Quit

	case "enter":
		text := m.input.Value()
		m.input.Reset()
		return m, m.dispatch(func(ctx context.Context) string {
			_ = m.orch.SendChatMessage(ctx, text)
			return ""
		})

	case "ctrl+g":
		text := m.input.Value()
		m.input.Reset()
		return m, m.dispatch(func(ctx context.Context) string {
			if err := m.orch.SubmitPrompt(ctx, text); err != nil {
				return err.Error()
			}
			return ""
		})

	case "ctrl+s":
		return m, m.dispatch(func(context.Context) string {
			_ = m.orch.AddScreenshotMessage()
			return ""
		})

	case "ctrl+p":
		snap := m.orch.Snapshot()
		next := app.ProviderCloud
		if snap.ChatProvider == app.ProviderCloud {
			next = app.ProviderLocal
		}
		_ = m.orch.SwitchChatProvider(next)
		return m, nil

	case "ctrl+l":
		m.showLog = !m.showLog
		return m, nil

	case "ctrl+x":
		m.orch.ClearTranscript()
		return m, nil
	}

	if m.showLog {
		switch msg.String() {
		case "e":
			m.logErrs = !m.logErrs
			return m, nil
		case "c":
			if err := clipboard.WriteAll(m.events.Export(m.logErrs)); err != nil {
				m.flash = "copy failed: " + err.Error()
			} else {
				m.flash = "log copied"
			}
			return m, nil
		}
	}

	// Alt+1..9 runs a workflow step.
	if msg.Alt && len(msg.Runes) == 1 {
		if n, err := strconv.Atoi(string(msg.Runes)); err == nil && n >= 1 {
			steps := m.orch.Snapshot().WorkflowSteps
			if n <= len(steps) {
				step := steps[n-1]
				return m, m.dispatch(func(ctx context.Context) string {
					if err := m.orch.TapWorkflowStep(ctx, step); err != nil {
						return err.Error()
					}
					return ""
				})
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch runs an orchestrator intent off the UI loop. The orchestrator
// serializes its own state, so the command only signals a re-render.
func (m *Model) dispatch(op func(context.Context) string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{flash: op(context.Background())}
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}
	if m.showLog {
		return m.logView()
	}

	snap := m.orch.Snapshot()
	var b strings.Builder

	if snap.VideoURL != "" {
		b.WriteString(videoStyle.Render("Video: "+snap.VideoURL) + "\n\n")
	}
	for i, step := range snap.WorkflowSteps {
		b.WriteString(stepStyle.Render(fmt.Sprintf("  alt+%d %s", i+1, step.Title)))
		if step.Detail != "" {
			b.WriteString(dimStyle.Render("  " + step.Detail))
		}
		b.WriteByte('\n')
	}
	if len(snap.WorkflowSteps) > 0 {
		b.WriteByte('\n')
	}

	for _, msg := range snap.Transcript {
		label := assistantStyle.Render("assistant")
		if msg.Role == app.RoleUser {
			label = userStyle.Render("you")
		}
		text := msg.Text
		if len(msg.ImagePNG) > 0 {
			text += dimStyle.Render(fmt.Sprintf(" [image, %d bytes]", len(msg.ImagePNG)))
		}
		b.WriteString(label + "  " + text + "\n")
	}

	m.view.SetContent(b.String())
	m.view.GotoBottom()

	return lipgloss.JoinVertical(lipgloss.Left,
		m.view.View(),
		m.statusBar(snap),
		m.input.View(),
	)
}

func (m *Model) statusBar(snap app.Snapshot) string {
	parts := []string{"provider: " + string(snap.ChatProvider)}
	if snap.Processing {
		parts = append(parts, m.spin.View()+" generating")
	}
	if snap.StatusText != "" {
		style := statusStyle
		if strings.Contains(snap.StatusText, "error") {
			style = errorStyle
		}
		parts = append(parts, style.Render(snap.StatusText))
	}
	if m.flash != "" {
		parts = append(parts, dimStyle.Render(m.flash))
	}
	parts = append(parts, dimStyle.Render("enter chat · ^G generate · ^S shot · ^P provider · ^L log"))
	return barStyle.Width(m.width).Render(strings.Join(parts, "  |  "))
}

func (m *Model) logView() string {
	title := "Event log"
	if m.logErrs {
		title += " (errors only)"
	}
	body := m.events.Export(m.logErrs)
	if body == "" {
		body = dimStyle.Render("(empty)")
	}
	footer := dimStyle.Render("e errors-only · c copy · esc back")
	return lipgloss.JoinVertical(lipgloss.Left, statusStyle.Render(title), "", body, "", footer)
}

// Run starts the TUI event loop and blocks until exit.
func Run(orch *app.Orchestrator, events *app.EventLog) error {
	p := tea.NewProgram(New(orch, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
