// Package gui owns the fyne application: the popup menu presenter and the
// system tray. fyne must run on the main goroutine; everything else reaches it
// through fyne.Do.
package gui

import (
	"log/slog"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"

	"instant-translator/src/tray"
)

const appID = "com.instantai.translator"

// TrayOptions wires the tray menu.
type TrayOptions struct {
	// OnPause is called with true when monitoring should stop, false to resume.
	OnPause func(paused bool)
	// OnQuit is called when the user picks Quit.
	OnQuit func()
}

// GUI is the running fyne application.
type GUI struct {
	app fyne.App

	mu     sync.Mutex
	paused bool
	pause  *fyne.MenuItem
	menu   *fyne.Menu

	// applyMu serializes OnPause calls; applied is the last state delivered.
	applyMu sync.Mutex
	applied bool
	pending sync.WaitGroup
}

// New creates the fyne app. It must be called on the main goroutine.
func New() *GUI {
	return NewWithApp(app.NewWithID(appID))
}

// NewWithApp wraps an existing fyne app.
func NewWithApp(a fyne.App) *GUI {
	a.SetIcon(tray.Icon())
	return &GUI{app: a}
}

// App returns the underlying fyne app.
func (g *GUI) App() fyne.App { return g.app }

// SetupTray installs the tray icon and menu. Without tray support it only logs.
func (g *GUI) SetupTray(opts TrayOptions) {
	desk, ok := g.app.(desktop.App)
	if !ok {
		slog.Warn("system tray not supported by this driver")
		return
	}

	g.pause = fyne.NewMenuItem("Pause monitoring", func() {
		paused := g.togglePause(opts.OnPause)
		g.refreshTray(desk, paused)
	})
	quit := fyne.NewMenuItem("Quit", func() {
		if opts.OnQuit != nil {
			opts.OnQuit()
		}
	})
	quit.IsQuit = true

	g.menu = fyne.NewMenu("Instant Translator", g.pause, fyne.NewMenuItemSeparator(), quit)
	desk.SetSystemTrayMenu(g.menu)
	desk.SetSystemTrayIcon(tray.Icon())
	slog.Info("system tray ready")
}

// togglePause flips the paused flag and applies it through onPause on another
// goroutine; stopping the poller can wait on a slow tick. Calls are serialized
// and always converge on the latest state.
func (g *GUI) togglePause(onPause func(bool)) bool {
	g.mu.Lock()
	g.paused = !g.paused
	paused := g.paused
	g.mu.Unlock()
	if onPause == nil {
		return paused
	}

	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		g.applyMu.Lock()
		defer g.applyMu.Unlock()
		g.mu.Lock()
		want := g.paused
		g.mu.Unlock()
		if want == g.applied {
			return
		}
		onPause(want)
		g.applied = want
	}()
	return paused
}

func (g *GUI) refreshTray(desk desktop.App, paused bool) {
	if paused {
		g.pause.Label = "Resume monitoring"
		desk.SetSystemTrayIcon(tray.PausedIcon())
	} else {
		g.pause.Label = "Pause monitoring"
		desk.SetSystemTrayIcon(tray.Icon())
	}
	g.menu.Refresh()
	slog.Info("monitoring toggled from tray", "paused", paused)
}

// Paused reports the tray toggle state.
func (g *GUI) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Run blocks on the fyne event loop until Quit.
func (g *GUI) Run() {
	g.app.Run()
}

// Quit stops the event loop. Safe from any goroutine.
func (g *GUI) Quit() {
	fyne.Do(g.app.Quit)
}
