// Package launcher opens desktop applications on the host running the server.
package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// unsafeChars may not appear in a free-form launch target.
const unsafeChars = "&|;<>`$\"'^%!()\n\r"

// Result is reported back to the caller of Open.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StartFunc starts a process without waiting for it to exit.
type StartFunc func(name string, args ...string) error

type app struct {
	keywords []string
	label    string
	windows  string
	darwin   string
	linux    string
}

var knownApps = []app{
	{keywords: []string{"chrome"}, label: "Chrome", windows: "chrome.exe", darwin: "Google Chrome", linux: "google-chrome"},
	{keywords: []string{"brave"}, label: "Brave", windows: "brave.exe", darwin: "Brave Browser", linux: "brave-browser"},
	{keywords: []string{"notepad"}, label: "Notepad", windows: "notepad.exe", darwin: "TextEdit", linux: "gedit"},
	{keywords: []string{"calculator", "calc"}, label: "Calculator", windows: "calc.exe", darwin: "Calculator", linux: "gnome-calculator"},
}

// Launcher maps commands such as "open chrome" to OS specific launches.
type Launcher struct {
	goos  string
	start StartFunc
	log   zerolog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithGOOS overrides the target operating system.
func WithGOOS(goos string) Option {
	return func(l *Launcher) { l.goos = goos }
}

// WithStart replaces process creation.
func WithStart(fn StartFunc) Option {
	return func(l *Launcher) { l.start = fn }
}

// New creates a Launcher for the current operating system.
func New(log zerolog.Logger, opts ...Option) *Launcher {
	l := &Launcher{goos: runtime.GOOS, start: startProcess, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open launches the application named in command.
func (l *Launcher) Open(command string) Result {
	label, name, args, err := l.resolve(command)
	if err == nil {
		err = l.start(name, args...)
	}
	if err != nil {
		l.log.Warn().Err(err).Str("command", command).Msg("launch failed")
		return Result{Status: StatusError, Message: err.Error()}
	}
	l.log.Info().Str("command", command).Str("exec", name).Msg("launched")
	return Result{Status: StatusSuccess, Message: label}
}

func (l *Launcher) resolve(command string) (string, string, []string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", "", nil, errors.New("command cannot be empty")
	}

	lower := strings.ToLower(trimmed)
	for _, a := range knownApps {
		for _, kw := range a.keywords {
			if strings.Contains(lower, kw) {
				name, args := l.known(a)
				return "Opening " + a.label, name, args, nil
			}
		}
	}

	target := trimmed
	switch {
	case lower == "open":
		target = ""
	case strings.HasPrefix(lower, "open "):
		target = strings.TrimSpace(trimmed[len("open "):])
	}
	if target == "" {
		return "", "", nil, errors.New("nothing to open")
	}
	if strings.ContainsAny(target, unsafeChars) {
		return "", "", nil, fmt.Errorf("refusing to start %q: unsupported characters", target)
	}

	name, args := l.generic(target)
	return "Attempting to start " + target, name, args, nil
}

func (l *Launcher) known(a app) (string, []string) {
	switch l.goos {
	case "windows":
		return "cmd", []string{"/c", "start", "", a.windows}
	case "darwin":
		return "open", []string{"-a", a.darwin}
	default:
		return a.linux, nil
	}
}

func (l *Launcher) generic(target string) (string, []string) {
	switch l.goos {
	case "windows":
		return "cmd", []string{"/c", "start", "", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

func startProcess(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
