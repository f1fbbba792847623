// Package voice turns assistant responses into speech.
//
// A Synthesizer speaks one piece of text and returns when playback ends or its
// context is cancelled. The Speaker owns at most one in-flight utterance and
// cancels it when a new one starts or when Stop is called.
package voice

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

// Synthesizer speaks text, blocking until playback ends or ctx is cancelled.
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text string) error

// Say calls f.
func (f SynthesizerFunc) Say(ctx context.Context, text string) error { return f(ctx, text) }

// Nop discards text. Used when speech is disabled in config.
type Nop struct{}

// Say returns immediately.
func (Nop) Say(context.Context, string) error { return nil }

// ErrNoCommand is returned when no TTS binary is available.
var ErrNoCommand = errors.New("no text-to-speech command available")

// CommandSynthesizer runs a local TTS program. Cancelling the context kills it.
type CommandSynthesizer struct {
	name  string
	args  []string
	stdin bool
}

// NewCommandSynthesizer builds a synthesizer from a command line such as
// "espeak -s 160". The text is appended as the last argument. An empty
// command selects the platform default.
func NewCommandSynthesizer(command string) *CommandSynthesizer {
	if fields := strings.Fields(command); len(fields) > 0 {
		return &CommandSynthesizer{name: fields[0], args: fields[1:]}
	}
	return defaultCommand(runtime.GOOS)
}

func defaultCommand(goos string) *CommandSynthesizer {
	switch goos {
	case "darwin":
		return &CommandSynthesizer{name: "say"}
	case "windows":
		// Text arrives on stdin so it never needs PowerShell quoting.
		return &CommandSynthesizer{
			name: "powershell",
			args: []string{
				"-NoProfile", "-NonInteractive", "-Command",
				"Add-Type -AssemblyName System.Speech; (New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak([Console]::In.ReadToEnd())",
			},
			stdin: true,
		}
	default:
		return &CommandSynthesizer{name: "espeak"}
	}
}

// Say runs the command and waits for it to exit.
func (c *CommandSynthesizer) Say(ctx context.Context, text string) error {
	if _, err := exec.LookPath(c.name); err != nil {
		return fmt.Errorf("%w: %s", ErrNoCommand, c.name)
	}

	args := append([]string{}, c.args...)
	if !c.stdin {
		args = append(args, text)
	}

	cmd := exec.CommandContext(ctx, c.name, args...)
	if c.stdin {
		cmd.Stdin = strings.NewReader(text)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("run %s: %w", c.name, err)
	}
	return nil
}

// New builds the synthesizer selected by cfg.Backend.
func New(cfg config.SpeechConfig, log *logging.Logger) Synthesizer {
	if log == nil {
		log = logging.Nop()
	}
	switch cfg.Backend {
	case "http":
		return NewHTTPSynthesizer(HTTPConfig{
			Endpoint: cfg.Endpoint,
			Voice:    cfg.Voice,
			Player:   cfg.Player,
		}, log)
	case "none":
		return Nop{}
	default:
		return NewCommandSynthesizer(cfg.Command)
	}
}
