package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
)

func chatCmd() *cobra.Command {
	var (
		session string
		plain   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &chatSession{backend: a.dispatcher, speech: a.settings, stopper: a.speaker, id: session}
			if plain || plainOutput() {
				return runPlainChat(ctx, s, os.Stdin, os.Stdout)
			}

			m := newChatModel(ctx, s)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			m.bridge.send = p.Send
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "conversation session id")
	cmd.Flags().BoolVar(&plain, "plain", false, "line-based chat without the full-screen interface")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// FULL-SCREEN CHAT
// ═══════════════════════════════════════════════════════════════════════════════

// Worker callbacks arrive on dispatcher goroutines and are forwarded to the
// program as messages.
type (
	activityMsg bool
	resultMsg   string
	errorMsg    string
	progressMsg int
)

// msgBridge forwards sink callbacks to the running program.
type msgBridge struct {
	send func(tea.Msg)
}

func (b *msgBridge) sink() dispatch.Sink {
	return dispatch.Sink{
		OnActivity: func(active bool) { b.send(activityMsg(active)) },
		OnResult:   func(text string) { b.send(resultMsg(text)) },
		OnError:    func(msg string) { b.send(errorMsg(msg)) },
		OnProgress: func(p int) { b.send(progressMsg(p)) },
	}
}

type chatModel struct {
	ctx     context.Context
	session *chatSession
	bridge  *msgBridge

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	lines    []string
	busy     int
	progress int
	width    int
	ready    bool
}

func newChatModel(ctx context.Context, s *chatSession) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask ALIAS anything, or /help"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	return &chatModel{
		ctx:     ctx,
		session: s,
		bridge:  &msgBridge{send: func(tea.Msg) {}},
		input:   ti,
		spinner: sp,
		lines:   []string{mutedStyle.Render("Type /help for commands.")},
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 4
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			// Letters belong to the input line.
			m.viewport.KeyMap = viewport.KeyMap{
				PageUp:   key.NewBinding(key.WithKeys("pgup")),
				PageDown: key.NewBinding(key.WithKeys("pgdown")),
			}
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if m.submit(line) {
				return m, tea.Quit
			}
			m.refresh()
			return m, nil
		}

	case activityMsg:
		if msg {
			m.busy++
		} else if m.busy > 0 {
			m.busy--
		}
		if m.busy == 0 {
			m.progress = 0
		}

	case resultMsg:
		if msg != "" {
			m.appendLine(assistantStyle.Render("ALIAS: ") + m.wrap(string(msg)))
		}

	case errorMsg:
		m.appendLine(errorStyle.Render("Error: " + string(msg)))

	case progressMsg:
		m.progress = int(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit handles one entered line and reports whether to quit.
func (m *chatModel) submit(line string) bool {
	res, isMeta := m.session.meta(m.ctx, line)
	if isMeta {
		if res.quit {
			return true
		}
		if res.analyze != "" {
			m.appendLine(mutedStyle.Render("Analyzing " + res.analyze + "..."))
			if _, err := m.session.backend.AnalyzeFile(res.analyze, m.bridge.sink()); err != nil {
				m.appendLine(errorStyle.Render("Error: " + err.Error()))
			}
			return false
		}
		m.appendLine(mutedStyle.Render(res.reply))
		return false
	}

	m.appendLine(userStyle.Render("You: ") + m.wrap(line))
	if _, err := m.session.backend.Dispatch(line, m.session.id, m.bridge.sink()); err != nil {
		m.appendLine(errorStyle.Render("Error: " + err.Error()))
	}
	return false
}

func (m *chatModel) wrap(s string) string {
	if m.width <= 10 {
		return s
	}
	return lipgloss.NewStyle().Width(m.width - 8).Render(s)
}

func (m *chatModel) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *chatModel) View() string {
	if !m.ready {
		return "Starting ALIAS..."
	}

	status := mutedStyle.Render("speech " + onOff(m.session.speech.SpeechEnabled()))
	if m.busy > 0 {
		working := "thinking"
		if m.progress > 0 {
			working = fmt.Sprintf("working %d%%", m.progress)
		}
		status = m.spinner.View() + " " + working + "  " + status
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("ALIAS"),
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PLAIN CHAT
// ═══════════════════════════════════════════════════════════════════════════════

// runPlainChat reads one utterance per line and prints replies as they arrive.
// Each line waits for its reply before the next is read.
func runPlainChat(ctx context.Context, s *chatSession, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}
	sink := dispatch.Sink{
		OnResult: func(text string) {
			if text != "" {
				printf("ALIAS: %s\n", text)
			}
		},
		OnError:    func(msg string) { printf("Error: %s\n", msg) },
		OnProgress: func(p int) { printf("... %d%%\n", p) },
	}

	scanner := bufio.NewScanner(in)
	for {
		printf("> ")
		if !scanner.Scan() {
			printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var (
			task *dispatch.Task
			err  error
		)
		if res, isMeta := s.meta(ctx, line); isMeta {
			if res.quit {
				return nil
			}
			if res.analyze == "" {
				printf("%s\n", res.reply)
				continue
			}
			task, err = s.backend.AnalyzeFile(res.analyze, sink)
		} else {
			task, err = s.backend.Dispatch(line, s.id, sink)
		}
		if err != nil {
			printf("Error: %s\n", err)
			continue
		}

		select {
		case <-task.Done():
		case <-ctx.Done():
			return nil
		}
	}
}
