package gui

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"instant-translator/src/popup"
)

// Placer moves a mapped window, found by title, to a screen position.
type Placer interface {
	Place(title string, x, y int, timeout time.Duration) error
}

// Presenter draws popup menus as borderless fyne windows.
type Presenter struct {
	app    fyne.App
	placer Placer

	mu      sync.Mutex
	current *menuHandle
	seq     atomic.Uint64
}

// NewPresenter builds a presenter. placer may be nil, in which case menus
// appear wherever the window manager puts them.
func NewPresenter(g *GUI, placer Placer) *Presenter {
	p := &Presenter{app: g.app, placer: placer}
	g.app.Lifecycle().SetOnExitedForeground(func() {
		p.mu.Lock()
		h := p.current
		p.mu.Unlock()
		if h != nil {
			h.dismiss("focus-out")
		}
	})
	return p
}

type menuHandle struct {
	p      *Presenter
	menu   popup.Menu
	win    fyne.Window
	title  string
	fired  atomic.Bool
	once   sync.Once
	items  []*widget.Button
	info   *widget.Label
	header *widget.Label
}

// Open shows m. Safe to call from any goroutine.
func (p *Presenter) Open(m popup.Menu) (popup.Handle, error) {
	h := &menuHandle{p: p, menu: m, title: fmt.Sprintf("%s #%d", m.Title, p.seq.Add(1))}

	var openErr error
	fyne.DoAndWait(func() {
		defer func() {
			if r := recover(); r != nil {
				openErr = fmt.Errorf("open menu window: %v", r)
			}
		}()
		h.win = p.newWindow(h.title)
		h.win.SetContent(h.build())
		h.win.SetOnClosed(func() { h.dismiss("closed") })
		h.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
			if ev.Name == fyne.KeyEscape {
				h.dismiss("escape")
			}
		})
		h.win.Show()
		h.win.RequestFocus()
	})
	if openErr != nil {
		return nil, openErr
	}

	p.mu.Lock()
	p.current = h
	p.mu.Unlock()

	if p.placer != nil {
		go func() {
			if err := p.placer.Place(h.title, m.Anchor.X, m.Anchor.Y, 500*time.Millisecond); err != nil {
				slog.Debug("menu placement failed", "err", err)
			}
		}()
	}
	return h, nil
}

func (p *Presenter) newWindow(title string) fyne.Window {
	var w fyne.Window
	if drv, ok := p.app.Driver().(desktop.Driver); ok {
		w = drv.CreateSplashWindow()
		w.SetTitle(title)
	} else {
		w = p.app.NewWindow(title)
	}
	w.SetFixedSize(true)
	return w
}

func (h *menuHandle) build() fyne.CanvasObject {
	h.header = widget.NewLabelWithStyle(h.menu.Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	objects := []fyne.CanvasObject{h.header, widget.NewSeparator()}

	if len(h.menu.Items) == 0 {
		empty := widget.NewButton(popup.NoActionsLabel, nil)
		empty.Disable()
		h.items = append(h.items, empty)
		objects = append(objects, empty)
	}
	for _, it := range h.menu.Items {
		id := it.ID
		b := widget.NewButton(it.Label, func() { h.pick(id) })
		b.Alignment = widget.ButtonAlignLeading
		if !it.Enabled {
			b.Disable()
		}
		h.items = append(h.items, b)
		objects = append(objects, b)
	}

	h.info = widget.NewLabelWithStyle(h.menu.Info, fyne.TextAlignLeading, fyne.TextStyle{Italic: true})
	objects = append(objects, widget.NewSeparator(), h.info)
	return container.NewVBox(objects...)
}

// pick and dismiss report at most one outcome per menu.
func (h *menuHandle) pick(id string) {
	if h.fired.CompareAndSwap(false, true) && h.menu.OnPick != nil {
		h.menu.OnPick(id)
	}
}

func (h *menuHandle) dismiss(reason string) {
	if h.fired.CompareAndSwap(false, true) && h.menu.OnDismiss != nil {
		h.menu.OnDismiss(reason)
	}
}

// Close hides and destroys the window. Idempotent.
func (h *menuHandle) Close() {
	h.once.Do(func() {
		h.fired.Store(true)
		h.p.mu.Lock()
		if h.p.current == h {
			h.p.current = nil
		}
		h.p.mu.Unlock()
		fyne.DoAndWait(func() { h.win.Close() })
	})
}
