package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
)

var (
	accentColor = lipgloss.Color("#7D56F4")
	userColor   = lipgloss.Color("#04B575")
	errorColor  = lipgloss.Color("#FF5F87")
	mutedColor  = lipgloss.Color("#767676")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(userColor)
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(mutedColor)
)

// plainOutput reports whether stdout cannot show colour, e.g. a pipe.
func plainOutput() bool {
	return termenv.NewOutput(os.Stdout).Profile == termenv.Ascii
}

// renderMarkdown renders md for the terminal, or returns it unchanged when
// stdout is not a terminal.
func renderMarkdown(md string) string {
	if plainOutput() {
		return md
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}

func historyMarkdown(session string, turns []memory.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Conversation history (%s)\n\n", session)
	if len(turns) == 0 {
		b.WriteString("_No messages yet._\n")
		return b.String()
	}
	b.WriteString("| When | Type | You | ALIAS |\n|---|---|---|---|\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			t.Timestamp.Local().Format("2006-01-02 15:04"), t.CommandType, cell(t.UserMessage), cell(t.AssistantResponse))
	}
	return b.String()
}

func similarMarkdown(query string, rows []memory.QueryMemory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Queries like %q\n\n", query)
	if len(rows) == 0 {
		b.WriteString("_Nothing similar remembered._\n")
		return b.String()
	}
	b.WriteString("| Query | Asked | Success | Last answer |\n|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %d | %.0f%% | %s |\n", cell(r.Query), r.Frequency, r.SuccessRate*100, cell(r.Response))
	}
	return b.String()
}

func statsMarkdown(s *memory.Statistics) string {
	var b strings.Builder
	b.WriteString("## Memory statistics\n\n")
	fmt.Fprintf(&b, "- Total messages: **%d**\n", s.TotalMessages)
	fmt.Fprintf(&b, "- Last 24 hours: **%d**\n", s.Last24Hours)
	if len(s.TopCommands) > 0 {
		b.WriteString("\n| Command type | Count |\n|---|---|\n")
		for _, c := range s.TopCommands {
			fmt.Fprintf(&b, "| %s | %d |\n", c.CommandType, c.Count)
		}
	}
	return b.String()
}
