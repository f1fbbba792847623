package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
)

// chatBackend is what an interactive session drives.
type chatBackend interface {
	Dispatch(utterance, sessionID string, sink dispatch.Sink) (*dispatch.Task, error)
	AnalyzeFile(path string, sink dispatch.Sink) (*dispatch.Task, error)
	SimilarQueries(ctx context.Context, query string, limit int) ([]memory.QueryMemory, error)
}

type speechControl interface {
	SpeechEnabled() bool
	SetSpeechEnabled(enabled bool)
}

type stopper interface {
	Stop()
}

// chatSession holds the state shared by the TUI and the plain REPL.
type chatSession struct {
	backend chatBackend
	speech  speechControl
	stopper stopper
	id      string
}

const chatHelp = `Commands:
  /speech on|off   toggle spoken replies
  /stop            stop speaking
  /similar <text>  show remembered queries like <text>
  /analyze <file>  summarize a document
  /help            show this help
  /quit            leave`

// metaResult is the outcome of a slash command.
type metaResult struct {
	reply   string
	analyze string
	quit    bool
}

// meta handles slash commands. ok is false for ordinary utterances.
func (s *chatSession) meta(ctx context.Context, line string) (metaResult, bool) {
	if !strings.HasPrefix(line, "/") {
		return metaResult{}, false
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return metaResult{quit: true}, true
	case "help", "?":
		return metaResult{reply: chatHelp}, true
	case "stop":
		if s.stopper != nil {
			s.stopper.Stop()
		}
		return metaResult{reply: "Stopped speaking."}, true
	case "speech":
		switch strings.ToLower(arg) {
		case "on":
			s.speech.SetSpeechEnabled(true)
		case "off":
			s.speech.SetSpeechEnabled(false)
			if s.stopper != nil {
				s.stopper.Stop()
			}
		case "":
		default:
			return metaResult{reply: "Usage: /speech on|off"}, true
		}
		return metaResult{reply: "Speech is " + onOff(s.speech.SpeechEnabled()) + "."}, true
	case "similar":
		if arg == "" {
			return metaResult{reply: "Usage: /similar <text>"}, true
		}
		rows, err := s.backend.SimilarQueries(ctx, arg, 5)
		if err != nil {
			return metaResult{reply: "Lookup failed: " + err.Error()}, true
		}
		return metaResult{reply: formatSimilar(rows)}, true
	case "analyze":
		if arg == "" {
			return metaResult{reply: "Usage: /analyze <file>"}, true
		}
		return metaResult{analyze: arg}, true
	}
	return metaResult{reply: fmt.Sprintf("Unknown command /%s. Type /help.", cmd)}, true
}

func formatSimilar(rows []memory.QueryMemory) string {
	if len(rows) == 0 {
		return "Nothing similar remembered."
	}
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (asked %d×, %.0f%% success)", i+1, r.Query, r.Frequency, r.SuccessRate*100)
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
