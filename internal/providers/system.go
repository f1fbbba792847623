package providers

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupportedCommand is returned for system requests with no OS action.
var ErrUnsupportedCommand = errors.New("unsupported system command")

// Command is an OS process invocation.
type Command struct {
	Name string
	Args []string
	// Detach starts the process without waiting for it to exit.
	Detach bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// SystemExecutor opens and closes applications and adjusts the volume.
type SystemExecutor struct {
	goos string
	run  func(ctx context.Context, c Command) error
}

// NewSystemExecutor creates an executor for the running OS.
func NewSystemExecutor() *SystemExecutor {
	return &SystemExecutor{goos: runtime.GOOS, run: runCommand}
}

// Execute performs the action named by utterance.
func (s *SystemExecutor) Execute(ctx context.Context, utterance string) error {
	cmd, err := s.Plan(utterance)
	if err != nil {
		return err
	}
	if err := s.run(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// Plan maps utterance to the command for this OS without running it.
func (s *SystemExecutor) Plan(utterance string) (Command, error) {
	lower := strings.ToLower(strings.TrimSpace(utterance))

	switch {
	case strings.Contains(lower, "open"):
		app := appName(utterance, "open")
		if app == "" {
			return Command{}, errors.New("which application should I open?")
		}
		return s.openApp(app), nil
	case strings.Contains(lower, "close"):
		app := appName(utterance, "close")
		if app == "" {
			return Command{}, errors.New("which application should I close?")
		}
		return s.closeApp(app), nil
	case strings.Contains(lower, "volume up"):
		return s.volume("up"), nil
	case strings.Contains(lower, "volume down"):
		return s.volume("down"), nil
	case strings.Contains(lower, "mute"):
		return s.volume("mute"), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnsupportedCommand, utterance)
}

// appName removes the verb and returns what is left, keeping its case.
func appName(utterance, verb string) string {
	var kept []string
	for _, w := range strings.Fields(utterance) {
		if strings.EqualFold(w, verb) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func (s *SystemExecutor) openApp(app string) Command {
	switch s.goos {
	case "windows":
		return Command{Name: "cmd", Args: []string{"/c", "start", "", app}, Detach: true}
	case "darwin":
		return Command{Name: "open", Args: []string{"-a", app}}
	default:
		return Command{Name: strings.ToLower(strings.ReplaceAll(app, " ", "-")), Detach: true}
	}
}

func (s *SystemExecutor) closeApp(app string) Command {
	lower := strings.ToLower(app)
	switch s.goos {
	case "windows":
		image := strings.ReplaceAll(lower, " ", "") + ".exe"
		return Command{Name: "taskkill", Args: []string{"/f", "/im", image}}
	case "darwin":
		return Command{Name: "osascript", Args: []string{"-e", fmt.Sprintf("quit app %q", app)}}
	default:
		return Command{Name: "pkill", Args: []string{"-i", "-f", lower}}
	}
}

func (s *SystemExecutor) volume(action string) Command {
	switch s.goos {
	case "windows":
		key := map[string]int{"up": 175, "down": 174, "mute": 173}[action]
		script := fmt.Sprintf("(New-Object -ComObject WScript.Shell).SendKeys([char]%d)", key)
		return Command{Name: "powershell", Args: []string{"-NoProfile", "-Command", script}}
	case "darwin":
		script := map[string]string{
			"up":   "set volume output volume ((output volume of (get volume settings)) + 10)",
			"down": "set volume output volume ((output volume of (get volume settings)) - 10)",
			"mute": "set volume output muted not (output muted of (get volume settings))",
		}[action]
		return Command{Name: "osascript", Args: []string{"-e", script}}
	default:
		arg := map[string][]string{
			"up":   {"set-sink-volume", "@DEFAULT_SINK@", "+10%"},
			"down": {"set-sink-volume", "@DEFAULT_SINK@", "-10%"},
			"mute": {"set-sink-mute", "@DEFAULT_SINK@", "toggle"},
		}[action]
		return Command{Name: "pactl", Args: arg}
	}
}

func runCommand(ctx context.Context, c Command) error {
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return err
	}
	if c.Detach {
		cmd := exec.Command(path, c.Args...)
		if err := cmd.Start(); err != nil {
			return err
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}
	out, err := exec.CommandContext(ctx, path, c.Args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
