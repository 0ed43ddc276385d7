package hotkey

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gohook "github.com/robotn/gohook"
)

// HookGrabber listens through a passive global hook instead of a grab. It
// sees the chord even when another client holds it, but cannot stop the
// focused application from seeing the key too.
type HookGrabber struct {
	hits    atomic.Int64
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

func NewHookGrabber() *HookGrabber {
	return &HookGrabber{}
}

func (h *HookGrabber) Grab(c Chord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	gohook.Register(gohook.KeyDown, c.Keys, func(gohook.Event) {
		h.hits.Add(1)
	})
	evChan := gohook.Start()
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		<-gohook.Process(evChan)
	}()
	h.started = true
	slog.Info("hotkey hook started", "chord", c.String(), "keys", c.Keys)
	return nil
}

func (h *HookGrabber) Poll() (int, error) {
	return int(h.hits.Swap(0)), nil
}

func (h *HookGrabber) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	h.started = false
	gohook.End()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		slog.Warn("hook event loop did not exit in time")
	}
	return nil
}
