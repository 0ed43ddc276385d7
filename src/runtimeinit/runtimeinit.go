// Package runtimeinit performs the startup checks and wiring shared by every
// command: configuration, logging, environment compatibility and the
// processing backend.
package runtimeinit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"instant-translator/src/config"
	"instant-translator/src/llm"
	"instant-translator/src/notification"
)

// Status is the process exit status for a startup failure point.
type Status int

const (
	StatusSuccess     Status = 0
	StatusInit        Status = -1
	StatusNoSelection Status = -2
	StatusNoDisplay   Status = -3
	StatusDBus        Status = -4
	StatusGUI         Status = -5
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInit:
		return "initialization failure"
	case StatusNoSelection:
		return "no selection"
	case StatusNoDisplay:
		return "no display"
	case StatusDBus:
		return "D-Bus failure"
	case StatusGUI:
		return "GUI failure"
	}
	return fmt.Sprintf("status %d", int(s))
}

// InitError is a fatal startup failure tagged with its status.
type InitError struct {
	Status Status
	Err    error
}

func (e *InitError) Error() string { return fmt.Sprintf("%s: %v", e.Status, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// Fail wraps err with status.
func Fail(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &InitError{Status: status, Err: err}
}

// ExitCode maps err to a process exit code: 0 for nil, the tagged status for
// an InitError, StatusInit otherwise.
func ExitCode(err error) int {
	if err == nil {
		return int(StatusSuccess)
	}
	var ie *InitError
	if errors.As(err, &ie) {
		return int(ie.Status)
	}
	return int(StatusInit)
}

// Tool is an external program the process shells out to.
type Tool struct {
	Name     string
	Required bool
	Purpose  string
}

// Env abstracts the process environment for the compatibility check.
type Env struct {
	Getenv   func(string) string
	LookPath func(string) (string, error)
}

// SystemEnv uses the real environment.
func SystemEnv() Env {
	return Env{Getenv: os.Getenv, LookPath: exec.LookPath}
}

// Report is the outcome of CheckCompatibility.
type Report struct {
	Display  string
	Desktop  string
	Found    map[string]string
	Missing  []string
	Warnings []string
}

// OK reports whether every requirement is met.
func (r Report) OK() bool { return r.Display != "" && len(r.Missing) == 0 }

// CheckCompatibility verifies a display is configured and the tools are on PATH.
// A missing required tool is an error; a missing optional one a warning.
func CheckCompatibility(env Env, tools []Tool) (Report, error) {
	r := Report{
		Display: env.Getenv("DISPLAY"),
		Desktop: DesktopEnvironment(env.Getenv),
		Found:   make(map[string]string),
	}
	for _, t := range tools {
		path, err := env.LookPath(t.Name)
		if err != nil {
			if t.Required {
				r.Missing = append(r.Missing, t.Name)
			} else {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s not found (%s unavailable)", t.Name, t.Purpose))
			}
			continue
		}
		r.Found[t.Name] = path
	}

	if r.Display == "" {
		return r, Fail(StatusNoDisplay, errors.New("DISPLAY is not set; an X11 session is required"))
	}
	if len(r.Missing) > 0 {
		return r, Fail(StatusInit, fmt.Errorf("required tools missing from PATH: %s", strings.Join(r.Missing, ", ")))
	}
	return r, nil
}

// DesktopEnvironment names the running desktop from XDG_CURRENT_DESKTOP, then
// DESKTOP_SESSION, else "unknown".
func DesktopEnvironment(getenv func(string) string) string {
	for _, key := range []string{"XDG_CURRENT_DESKTOP", "DESKTOP_SESSION"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return "unknown"
}

// RequiredTools lists the external programs cfg needs.
func RequiredTools(cfg *config.Config) []Tool {
	return []Tool{
		{Name: "xclip", Required: true, Purpose: "selection and clipboard access"},
		{Name: "xdotool", Required: cfg.InputBackend == config.InputBackendXdotool, Purpose: "input synthesis fallback"},
		{Name: "xrdb", Required: false, Purpose: "DPI detection"},
	}
}

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(*config.Config)
	Env          Env
	// SkipCompatibility is set by commands that only talk to a resident.
	SkipCompatibility bool
	// PingLLM checks the OpenRouter endpoint when the LLM processor is selected.
	PingLLM            bool
	ShowBlockingErrors bool
}

func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, Fail(StatusInit, fmt.Errorf("failed to load configuration: %w", err))
	}
	if cfg.Display != "" {
		_ = os.Setenv("DISPLAY", cfg.Display)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg)
	}

	if !opts.SkipCompatibility {
		env := opts.Env
		if env.Getenv == nil {
			env = SystemEnv()
		}
		report, err := CheckCompatibility(env, RequiredTools(cfg))
		for _, w := range report.Warnings {
			slog.Warn("compatibility", "warning", w)
		}
		if err != nil {
			if opts.ShowBlockingErrors {
				notification.ShowBlockingError("Instant Translator cannot start", err.Error())
			}
			return nil, err
		}
		slog.Info("environment ok", "display", report.Display, "desktop", report.Desktop, "tools", report.Found)
	}

	if cfg.Processor == config.ProcessorLLM {
		if cfg.APIKey == "" {
			return nil, Fail(StatusInit, fmt.Errorf("OPENROUTER_API_KEY is required for PROCESSOR=llm. Checked key file %s and OPENROUTER_API_KEY env var", cfg.APIKeyPath))
		}
		if cfg.Model == "" {
			return nil, Fail(StatusInit, errors.New("MODEL is required for PROCESSOR=llm. Please set it in your .env file"))
		}
		llm.Init(&llm.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Providers: cfg.Providers,
		})
		if opts.PingLLM {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := llm.Ping(ctx); err != nil {
				if opts.ShowBlockingErrors {
					notification.ShowBlockingError("LLM unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease verify your API key and network connectivity.", err))
				}
				return nil, Fail(StatusInit, fmt.Errorf("startup check failed: %w", err))
			}
			slog.Info("LLM ping succeeded")
		}
	}

	return cfg, nil
}
