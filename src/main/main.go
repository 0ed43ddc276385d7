package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"instant-translator/src/actions"
	"instant-translator/src/config"
	"instant-translator/src/logutil"
	"instant-translator/src/runtimeinit"
	"instant-translator/src/session"
	"instant-translator/src/singleinstance"
)

type mainOptions struct {
	apiKeyPath string
	action     string
	noPing     bool
}

// errNoResident is returned by control commands that need a running resident.
var errNoResident = errors.New("no running instance found")

func main() {
	err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(runtimeinit.ExitCode(err))
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"instant-translator"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instant-translator",
		Short: "Replace selected text with an AI-processed version",
		Long: `instant-translator watches the X11 PRIMARY selection. Press the hotkey
(default Ctrl+Shift+M) to open a menu of actions next to the pointer; the chosen
action's result replaces the selection in the focused application.

Settings come from .env next to the executable (or $INSTANT_TRANSLATOR),
the process environment, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(cmd.Context(), cmd, *opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	pf.String("display", "", "X display to use (defaults to $DISPLAY)")
	pf.String("hotkey", "", "Global hotkey chord, e.g. Ctrl+Shift+M")
	pf.String("hotkey-backend", "", "Hotkey backend: grab|hook")
	pf.String("processor", "", "Processing backend: dbus|llm")
	pf.String("actions-file", "", "JSON file with the action menu")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: auto|text|json")
	pf.Bool("enable-file-logging", false, "Also write JSON logs next to the executable")
	cmd.Flags().BoolVar(&opts.noPing, "no-ping", false, "Skip the LLM connectivity check at startup")

	cmd.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newTriggerCmd(opts),
		newReplaceCmd(opts),
		newRegisterCmd(opts),
		newUnregisterCmd(opts),
	)
	return cmd
}

func newRunCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the resident (same as running without a subcommand)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResident(cmd.Context(), cmd, *opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noPing, "no-ping", false, "Skip the LLM connectivity check at startup")
	return cmd
}

func newCheckCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the desktop environment and required tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithOptions(loadOptions(cmd, *opts))
			if err != nil {
				return runtimeinit.Fail(runtimeinit.StatusInit, err)
			}
			env := runtimeinit.SystemEnv()
			report, err := runtimeinit.CheckCompatibility(env, runtimeinit.RequiredTools(cfg))
			printReport(cmd.OutOrStdout(), report)
			printResident(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}
}

func newTriggerCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running instance to act as if the hotkey was pressed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupControlLogging(cmd, *opts)
			req := singleinstance.Request{Command: singleinstance.CmdTrigger}
			return handleDelegation(cmd.Context(), singleinstance.NewClient(), req, cmd.OutOrStdout(), nil)
		},
	}
}

func newReplaceCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace [text]",
		Short: "Process text and type the result into the focused window",
		Long: `replace sends text (argument or stdin) to the running instance, which processes
it with --action and injects the result into the focused window. Without a
running instance the text is processed here and printed to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupControlLogging(cmd, *opts)
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			req := singleinstance.Request{
				Command: singleinstance.CmdReplace,
				Payload: encodeReplace(opts.action, text),
			}
			return handleDelegation(cmd.Context(), singleinstance.NewClient(), req, cmd.OutOrStdout(), func() error {
				return replaceStandalone(cmd, *opts, text)
			})
		},
	}
	cmd.Flags().StringVar(&opts.action, "action", "", "Action id to apply (empty injects the text as is)")
	return cmd
}

func newRegisterCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <actions.json>",
		Short: "Replace the running instance's action menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupControlLogging(cmd, *opts)
			set, err := actions.LoadFile(args[0])
			if err != nil {
				return err
			}
			body, err := actions.Encode(set)
			if err != nil {
				return err
			}
			req := singleinstance.Request{Command: singleinstance.CmdActions, Payload: string(body)}
			return handleDelegation(cmd.Context(), singleinstance.NewClient(), req, cmd.OutOrStdout(), nil)
		},
	}
}

func newUnregisterCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unregister",
		Short: "Clear the running instance's action menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupControlLogging(cmd, *opts)
			req := singleinstance.Request{Command: singleinstance.CmdClear}
			return handleDelegation(cmd.Context(), singleinstance.NewClient(), req, cmd.OutOrStdout(), nil)
		},
	}
}

// handleDelegation sends req to a resident. Without one, fallback runs if set,
// otherwise errNoResident is returned.
func handleDelegation(ctx context.Context, client singleinstance.Client, req singleinstance.Request, out io.Writer, fallback func() error) error {
	delegated, reply, err := client.Send(ctx, req)
	if err != nil {
		if fallback == nil {
			return err
		}
		slog.Warn("delegation failed, running standalone", "command", req.Command, "err", err)
		return fallback()
	}
	if !delegated {
		if fallback == nil {
			return errNoResident
		}
		slog.Debug("no resident detected, running standalone", "command", req.Command)
		return fallback()
	}
	slog.Debug("delegated to resident", "command", req.Command)
	if reply != "" && out != nil {
		fmt.Fprintln(out, reply)
	}
	return nil
}

// replaceStandalone processes text locally and prints the result.
func replaceStandalone(cmd *cobra.Command, opts mainOptions, text string) error {
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:       loadOptions(cmd, opts),
		SkipCompatibility: true,
	})
	if err != nil {
		return err
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		return runtimeinit.Fail(runtimeinit.StatusInit, err)
	}
	proc, closeProc, err := newProcessor(cfg, registry)
	if err != nil {
		return err
	}
	defer closeProc()

	process := proc.Process
	if opts.action == "" {
		process = passThrough
	}
	_, err = session.Execute(cmd.Context(), session.Request{Text: text, Operation: operationFor(registry, opts.action)}, session.Options{
		Deadline: cfg.ProcessTimeout,
		Process:  process,
		Target:   session.StdoutTarget{Writer: cmd.OutOrStdout()},
	})
	return err
}

func passThrough(_ context.Context, text, _ string) (string, error) { return text, nil }

func operationFor(registry *actions.Registry, id string) string {
	if a, ok := registry.Lookup(id); ok && a.Operation != "" {
		return a.Operation
	}
	return id
}

// encodeReplace packs an action id and text into a REPLACE payload.
func encodeReplace(action, text string) string {
	return action + "\n" + text
}

func decodeReplace(payload string) (action, text string) {
	action, text, ok := strings.Cut(payload, "\n")
	if !ok {
		return "", payload
	}
	return strings.TrimSpace(action), text
}

func readText(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(in, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return "", errors.New("no text given")
	}
	return text, nil
}

func loadOptions(cmd *cobra.Command, opts mainOptions) config.LoadOptions {
	return config.LoadOptions{Flags: cmd.Flags(), APIKeyPathOverride: opts.apiKeyPath}
}

// setupControlLogging keeps control commands quiet unless a level is asked for.
func setupControlLogging(cmd *cobra.Command, opts mainOptions) {
	level := slog.LevelWarn
	format := logutil.FormatAuto
	if cfg, err := config.LoadWithOptions(loadOptions(cmd, opts)); err == nil {
		if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
			level = logutil.ParseLevel(cfg.LogLevel)
		}
		format = logutil.ParseFormat(cfg.LogFormat)
	}
	logutil.Setup(logutil.Options{Format: format, Level: level, Console: cmd.ErrOrStderr()})
}

func setupLogging(cfg *config.Config) func() {
	return logutil.Setup(logutil.Options{
		Format:      logutil.ParseFormat(cfg.LogFormat),
		Level:       logutil.ParseLevel(cfg.LogLevel),
		FileLogging: cfg.EnableFileLogging,
		Dir:         logDir(),
	})
}

func logDir() string {
	exe, err := os.Executable()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Dir(exe)
}

func printReport(w io.Writer, r runtimeinit.Report) {
	display := r.Display
	if display == "" {
		display = "(not set)"
	}
	fmt.Fprintf(w, "Display:  %s\n", display)
	fmt.Fprintf(w, "Desktop:  %s\n", r.Desktop)
	for _, name := range slices.Sorted(maps.Keys(r.Found)) {
		fmt.Fprintf(w, "found:    %s (%s)\n", name, r.Found[name])
	}
	for _, name := range r.Missing {
		fmt.Fprintf(w, "missing:  %s\n", name)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning:  %s\n", warn)
	}
	if r.OK() {
		fmt.Fprintln(w, "OK")
	}
}

func printResident(ctx context.Context, w io.Writer) {
	start, end := singleinstance.PortRange()
	if addr, ok := singleinstance.FindResident(ctx); ok {
		fmt.Fprintf(w, "Resident: running at %s\n", addr)
		return
	}
	fmt.Fprintf(w, "Resident: not running (ports %d-%d)\n", start, end)
}

// normalizeLegacyArgs maps single-dash long flags to their double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	long := []string{"api-key-path", "display", "hotkey", "hotkey-backend", "processor", "actions-file", "log-level", "log-format", "enable-file-logging", "no-ping", "action"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if arg == "--" {
			break
		}
		for _, name := range long {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}
