package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"instant-translator/src/actions"
	"instant-translator/src/clipboard"
	"instant-translator/src/config"
	"instant-translator/src/display"
	"instant-translator/src/eventloop"
	"instant-translator/src/gui"
	"instant-translator/src/handoff"
	"instant-translator/src/hotkey"
	"instant-translator/src/inject"
	"instant-translator/src/notification"
	"instant-translator/src/poller"
	"instant-translator/src/processor"
	"instant-translator/src/runtimeinit"
	"instant-translator/src/selection"
	"instant-translator/src/session"
	"instant-translator/src/singleinstance"
	"instant-translator/src/worker"
)

// resident holds everything the long-running process owns, in acquisition order.
type resident struct {
	cfg      *config.Config
	registry *actions.Registry

	conns []*display.Conn

	server    singleinstance.Server
	proc      processor.Processor
	closeProc func()
	injector  *inject.Injector
	source    selection.Source
	pool      *worker.Pool
	loop      *eventloop.Loop
	ui        *gui.GUI
	poller    *poller.Poller
	listener  *hotkey.Listener

	cancel   context.CancelFunc
	stopLoop context.CancelFunc
	loopDone chan error
	stopOnce sync.Once
}

func runResident(ctx context.Context, cmd *cobra.Command, opts mainOptions) error {
	var closeLogs func()
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: loadOptions(cmd, opts),
		SetupLogging: func(cfg *config.Config) {
			closeLogs = setupLogging(cfg)
		},
		PingLLM:            !opts.noPing,
		ShowBlockingErrors: true,
	})
	if closeLogs != nil {
		defer closeLogs()
	}
	if err != nil {
		return err
	}

	r := &resident{cfg: cfg, loopDone: make(chan error, 1)}
	if err := r.start(ctx); err != nil {
		r.shutdown()
		return err
	}

	slog.Info("instant translator running", "hotkey", cfg.Hotkey, "processor", cfg.Processor, "actions", len(r.registry.List()))
	// Fyne owns the main goroutine until Quit.
	r.ui.Run()
	r.shutdown()
	slog.Info("instant translator stopped")
	return nil
}

func (r *resident) start(parent context.Context) error {
	cfg := r.cfg
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	r.server = singleinstance.NewServer()
	if err := r.server.Start(ctx); err != nil {
		r.server = nil
		return runtimeinit.Fail(runtimeinit.StatusInit, fmt.Errorf("another instance is already running: %w", err))
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return runtimeinit.Fail(runtimeinit.StatusInit, err)
	}
	r.registry = registry

	r.proc, r.closeProc, err = newProcessor(cfg, registry)
	if err != nil {
		return err
	}

	selConn, err := r.openDisplay()
	if err != nil {
		return err
	}
	r.source = newSelectionSource(ctx, cfg, selConn)

	injConn, err := r.openDisplay()
	if err != nil {
		return err
	}
	r.injector, err = newInjector(cfg, injConn)
	if err != nil {
		return err
	}

	placeConn, err := r.openDisplay()
	if err != nil {
		return err
	}

	r.ui = gui.New()
	r.loop = eventloop.New(eventloop.Options{
		Presenter: gui.NewPresenter(r.ui, placeConn),
		Registry:  registry,
		Notifier:  notification.Notifier{},
		Handoff:   handoff.File{Path: cfg.HandoffPath},
	})

	r.pool = worker.New(1)
	handler := &session.Handler{
		Ctx:      ctx,
		Pool:     r.pool,
		Registry: registry,
		Process:  r.proc.Process,
		Injector: r.injector,
		Notices:  r.loop,
		Deadline: cfg.ProcessTimeout,
	}
	r.loop.SetActionHandler(handler)
	r.loop.SetSelectionHandler(handler)

	// The loop outlives the actors so it can dispatch what they queued.
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(parent))
	r.stopLoop = stopLoop
	go func() {
		r.loopDone <- r.loop.Run(loopCtx)
	}()

	chord, err := hotkey.ParseChord(cfg.Hotkey)
	if err != nil {
		return runtimeinit.Fail(runtimeinit.StatusInit, err)
	}
	grabber, err := r.newGrabber(cfg)
	if err != nil {
		return err
	}
	r.listener = hotkey.NewListener(grabber, chord, r.source, r.loop, hotkey.DefaultInterval)
	if err := r.listener.Start(ctx); err != nil {
		r.listener = nil
		return runtimeinit.Fail(runtimeinit.StatusInit, err)
	}

	r.poller = poller.New(r.source, cfg.PollInterval, r.loop.PublishSelection)
	r.poller.Start(ctx)

	r.ui.SetupTray(gui.TrayOptions{
		OnPause: func(paused bool) {
			if ctx.Err() != nil {
				return
			}
			if paused {
				r.poller.Stop()
				slog.Info("selection monitoring paused")
				return
			}
			r.poller.Start(ctx)
			slog.Info("selection monitoring resumed")
		},
		OnQuit: cancel,
	})

	go r.serve(ctx)
	go func() {
		<-ctx.Done()
		// The loop may still need the GUI to close an open menu.
		r.stopActors()
		r.ui.Quit()
	}()
	return nil
}

// openDisplay opens a connection and records it for release at shutdown.
func (r *resident) openDisplay() (*display.Conn, error) {
	conn, err := display.Open(r.cfg.Display)
	if err != nil {
		return nil, runtimeinit.Fail(runtimeinit.StatusNoDisplay, err)
	}
	r.conns = append(r.conns, conn)
	return conn, nil
}

func (r *resident) newGrabber(cfg *config.Config) (hotkey.Grabber, error) {
	if cfg.HotkeyBackend == config.HotkeyBackendHook {
		return hotkey.NewHookGrabber(), nil
	}
	// The grabber closes its own connection on Release.
	conn, err := display.Open(cfg.Display)
	if err != nil {
		return nil, runtimeinit.Fail(runtimeinit.StatusNoDisplay, err)
	}
	return hotkey.NewX11Grabber(conn), nil
}

// serve answers control requests from other invocations until ctx ends.
func (r *resident) serve(ctx context.Context) {
	for {
		c, err := r.server.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("control endpoint stopped", "err", err)
			}
			return
		}
		go r.handleConn(ctx, c)
	}
}

func (r *resident) handleConn(ctx context.Context, c singleinstance.Conn) {
	defer c.Close()
	req := c.Request()
	slog.Debug("control request", "command", req.Command, "payload_bytes", len(req.Payload))

	switch req.Command {
	case singleinstance.CmdTrigger:
		r.listener.Trigger(ctx)
		_ = c.RespondSuccess("")
	case singleinstance.CmdReplace:
		action, text := decodeReplace(req.Payload)
		process := r.proc.Process
		if action == "" {
			process = passThrough
		}
		_, err := session.Execute(ctx, session.Request{Text: text, Operation: operationFor(r.registry, action)}, session.Options{
			Deadline: r.cfg.ProcessTimeout,
			Process:  process,
			Target:   session.DelegatedTarget{Conn: c, Injector: r.injector},
			Fallback: true,
		})
		if err != nil {
			slog.Error("delegated replace failed", "action", action, "err", err)
		}
	case singleinstance.CmdActions:
		set, err := actions.Parse([]byte(req.Payload))
		if err == nil {
			err = r.registry.Register(set)
		}
		if err != nil {
			_ = c.RespondError(err.Error())
			return
		}
		slog.Info("actions registered", "count", len(set))
		_ = c.RespondSuccess(fmt.Sprintf("registered %d actions", len(set)))
	case singleinstance.CmdClear:
		r.registry.Unregister()
		slog.Info("actions cleared")
		_ = c.RespondSuccess("")
	default:
		_ = c.RespondError("unknown command " + req.Command)
	}
}

// stopActors stops the poller and the listener, then the coordinator loop.
func (r *resident) stopActors() {
	r.stopOnce.Do(func() {
		if r.poller != nil {
			r.poller.Stop()
		}
		if r.listener != nil {
			if err := r.listener.Stop(); err != nil {
				slog.Warn("hotkey release failed", "err", err)
			}
		}

		if r.cancel != nil {
			r.cancel()
		}
		if r.loop == nil {
			return
		}
		r.stopLoop()
		select {
		case err := <-r.loopDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("event loop stopped", "err", err)
			}
		case <-time.After(5 * time.Second):
			slog.Warn("event loop did not stop in time")
		}
	})
}

// shutdown releases resources in reverse acquisition order. Safe to call once
// start has failed part way.
func (r *resident) shutdown() {
	r.stopActors()
	// In-flight injections finish here.
	if r.pool != nil {
		r.pool.Close()
	}
	if r.server != nil {
		_ = r.server.Close()
	}
	if r.closeProc != nil {
		r.closeProc()
	}
	for i := len(r.conns) - 1; i >= 0; i-- {
		r.conns[i].Close()
	}
}

func loadRegistry(cfg *config.Config) (*actions.Registry, error) {
	set := actions.Defaults()
	if cfg.ActionsFile != "" {
		loaded, err := actions.LoadFile(cfg.ActionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load actions: %w", err)
		}
		set = loaded
	}
	registry := &actions.Registry{}
	if err := registry.Register(set); err != nil {
		return nil, err
	}
	return registry, nil
}

func newProcessor(cfg *config.Config, registry *actions.Registry) (processor.Processor, func(), error) {
	if cfg.Processor == config.ProcessorLLM {
		return &processor.LLM{Registry: registry, Timeout: cfg.ProcessTimeout}, func() {}, nil
	}
	p, err := processor.NewDBus()
	if err != nil {
		return nil, nil, runtimeinit.Fail(runtimeinit.StatusDBus, err)
	}
	p.Timeout = cfg.ProcessTimeout
	return p, func() { _ = p.Close() }, nil
}

func newSelectionSource(ctx context.Context, cfg *config.Config, conn *display.Conn) selection.Source {
	var transform selection.CoordinateTransform = selection.Identity
	if cfg.DetectScale {
		if factor := selection.DetectScale(ctx, selection.DefaultProbe()); factor > 1 {
			slog.Info("display scaling detected", "factor", factor)
			transform = selection.Scale(factor)
		}
	}
	return selection.NewX11Source(clipboard.NewXclip(clipboard.Primary), conn, transform)
}

func newInjector(cfg *config.Config, conn *display.Conn) (*inject.Injector, error) {
	var backend clipboard.Backend = clipboard.NewXclip(clipboard.Clipboard)
	if cfg.ClipboardBackend == config.ClipboardBackendNative {
		native, err := clipboard.NewNative()
		if err != nil {
			return nil, runtimeinit.Fail(runtimeinit.StatusInit, err)
		}
		backend = native
	}

	var kb inject.Keyboard
	if cfg.InputBackend == config.InputBackendXdotool {
		kb = inject.NewXdotoolKeyboard()
	} else {
		xt, err := inject.NewXTestKeyboard(conn)
		if err != nil {
			return nil, runtimeinit.Fail(runtimeinit.StatusInit, err)
		}
		kb = xt
	}

	opts := inject.DefaultOptions()
	opts.Strategy = inject.Strategy(cfg.InjectStrategy)
	opts.PasteSettle = cfg.PasteSettle
	opts.KeyDelay = cfg.KeystrokeDelay
	opts.ClickSettle = cfg.ClickSettle
	return inject.New(kb, clipboard.NewExchange(backend, cfg.ClipboardSettle), opts), nil
}
