// Package eventloop is the menu coordinator: the only goroutine that creates,
// changes or destroys popup state. Other goroutines talk to it by posting
// messages onto its queue.
package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"instant-translator/src/actions"
	"instant-translator/src/logutil"
	"instant-translator/src/messages"
	"instant-translator/src/popup"
	"instant-translator/src/selection"
)

// ActionHandler receives the user's pick. Without one the loop falls back to
// the hand-off file.
type ActionHandler interface {
	OnAction(actionID string, snap selection.Snapshot)
}

// SelectionHandler receives every published selection.
type SelectionHandler interface {
	OnSelection(snap selection.Snapshot)
}

// Notifier shows transient notices.
type Notifier interface {
	Notify(title, message string) error
}

// Handoff persists a pick for an external reader.
type Handoff interface {
	Write(actionID, text string) error
}

// Options wires the loop's collaborators. Registry and Presenter are required.
type Options struct {
	Presenter popup.Presenter
	Registry  *actions.Registry
	Notifier  Notifier
	Handoff   Handoff
}

const (
	stateClosed int32 = iota
	statePending
	stateOpen
)

type session struct {
	id     uint64
	anchor popup.Point
	snap   selection.Snapshot
	handle popup.Handle
}

// Loop is the single-threaded coordinator.
type Loop struct {
	opts  Options
	queue *queue
	state atomic.Int32

	handlersMu  sync.RWMutex
	onAction    ActionHandler
	onSelection SelectionHandler

	// owned by the Run goroutine
	session *session
	nextID  uint64
	latest  selection.Snapshot

	notices sync.WaitGroup
	done    chan struct{}
}

// New creates a loop. Run must be called for queued work to happen.
func New(opts Options) *Loop {
	if opts.Registry == nil {
		opts.Registry = &actions.Registry{}
	}
	return &Loop{
		opts:  opts,
		queue: newQueue(),
		done:  make(chan struct{}),
	}
}

// SetActionHandler installs h; nil restores the hand-off fallback.
func (l *Loop) SetActionHandler(h ActionHandler) {
	l.handlersMu.Lock()
	l.onAction = h
	l.handlersMu.Unlock()
}

// SetSelectionHandler installs h; nil disables selection callbacks.
func (l *Loop) SetSelectionHandler(h SelectionHandler) {
	l.handlersMu.Lock()
	l.onSelection = h
	l.handlersMu.Unlock()
}

// Registry returns the action registry the menu is built from.
func (l *Loop) Registry() *actions.Registry { return l.opts.Registry }

// SessionOpen reports whether a menu is open or an open request is queued.
// Safe to call from any goroutine.
func (l *Loop) SessionOpen() bool {
	return l.state.Load() != stateClosed
}

// Post appends m to the queue. Never blocks.
func (l *Loop) Post(m messages.Message) {
	l.queue.push(m)
}

// OpenMenu requests a session anchored at p for snap.
func (l *Loop) OpenMenu(p popup.Point, snap selection.Snapshot) {
	l.state.CompareAndSwap(stateClosed, statePending)
	l.Post(messages.OpenMenu{Position: p, Snapshot: snap})
}

// CloseMenu requests that the open session, if any, be closed.
func (l *Loop) CloseMenu() {
	l.Post(messages.CloseMenu{Reason: "request"})
}

// OnActionChosen reports a pick made outside the presenter.
func (l *Loop) OnActionChosen(actionID string, snap selection.Snapshot) {
	l.Post(messages.ActionChosen{ActionID: actionID, Snapshot: &snap})
}

// ShowNotice requests a transient notice.
func (l *Loop) ShowNotice(message string) {
	l.Post(messages.ShowNotice{Text: message})
}

// PublishSelection forwards a poller event.
func (l *Loop) PublishSelection(snap selection.Snapshot) {
	l.Post(messages.SelectionChanged{Snapshot: snap})
}

// barrier is closed by the loop once everything queued ahead of it was handled.
type barrier chan struct{}

func (barrier) Type() string { return "barrier" }

// Sync blocks until work posted before the call has been dispatched or ctx ends.
func (l *Loop) Sync(ctx context.Context) error {
	b := make(barrier)
	l.Post(b)
	select {
	case <-b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run drains the queue until ctx is cancelled. On exit the work already
// queued is dispatched, except requests to open a new menu, and then the open
// session is closed.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.notices.Wait()
	for {
		select {
		case <-ctx.Done():
			l.finish()
			return ctx.Err()
		case <-l.queue.ready:
			if ctx.Err() != nil {
				l.finish()
				return ctx.Err()
			}
			for _, m := range l.queue.drain() {
				l.dispatch(m)
			}
		}
	}
}

func (l *Loop) finish() {
	for {
		pending := l.queue.drain()
		if len(pending) == 0 {
			break
		}
		for _, m := range pending {
			if _, ok := m.(messages.OpenMenu); ok {
				slog.Debug("menu request dropped on shutdown")
				continue
			}
			l.dispatch(m)
		}
	}
	l.closeSession("shutdown")
	l.state.Store(stateClosed)
}

func (l *Loop) dispatch(m messages.Message) {
	switch msg := m.(type) {
	case messages.SelectionChanged:
		l.handleSelection(msg.Snapshot)
	case messages.OpenMenu:
		l.openMenu(msg.Position, msg.Snapshot)
	case messages.CloseMenu:
		l.closeSession(msg.Reason)
	case messages.MenuDismissed:
		l.handleDismissed(msg)
	case messages.ActionChosen:
		l.handleActionChosen(msg)
	case messages.ShowNotice:
		l.showNotice(msg.Title, msg.Text)
	case barrier:
		close(msg)
	default:
		slog.Warn("unknown work item", "type", m.Type())
	}
}

func (l *Loop) handleSelection(snap selection.Snapshot) {
	l.latest = snap
	l.handlersMu.RLock()
	h := l.onSelection
	l.handlersMu.RUnlock()
	if h != nil {
		h.OnSelection(snap)
	}
}

func (l *Loop) openMenu(p popup.Point, snap selection.Snapshot) {
	if l.session != nil {
		l.closeSession("replaced")
	}

	l.nextID++
	id := l.nextID
	menu := popup.Build(p, snap.Text, l.opts.Registry.List())
	menu.OnPick = func(actionID string) {
		l.Post(messages.ActionChosen{SessionID: id, ActionID: actionID})
	}
	menu.OnDismiss = func(reason string) {
		l.Post(messages.MenuDismissed{SessionID: id, Reason: reason})
	}

	if l.opts.Presenter == nil {
		slog.Error("no presenter configured, cannot open menu")
		l.state.Store(stateClosed)
		return
	}
	handle, err := l.opts.Presenter.Open(menu)
	if err != nil {
		slog.Error("open menu failed", "err", err)
		l.state.Store(stateClosed)
		return
	}
	l.session = &session{id: id, anchor: p, snap: snap, handle: handle}
	l.state.Store(stateOpen)
	slog.Info("menu opened", "session", id, "x", p.X, "y", p.Y, "app", snap.App,
		"text", logutil.Sanitize(snap.Text), "actions", len(menu.Items))
}

// closeSession is idempotent: with no session it does nothing.
func (l *Loop) closeSession(reason string) {
	s := l.session
	if s == nil {
		return
	}
	l.session = nil
	s.handle.Close()
	// A queued open request keeps the pending state it set.
	l.state.CompareAndSwap(stateOpen, stateClosed)
	slog.Info("menu closed", "session", s.id, "reason", reason)
}

func (l *Loop) handleDismissed(msg messages.MenuDismissed) {
	if l.session == nil || l.session.id != msg.SessionID {
		return
	}
	l.closeSession(msg.Reason)
}

func (l *Loop) handleActionChosen(msg messages.ActionChosen) {
	var snap selection.Snapshot
	switch {
	case msg.SessionID != 0:
		if l.session == nil || l.session.id != msg.SessionID {
			slog.Debug("ignoring pick from stale menu", "session", msg.SessionID, "action", msg.ActionID)
			return
		}
		snap = l.session.snap
	case msg.Snapshot != nil:
		snap = *msg.Snapshot
	default:
		return
	}

	if a, ok := l.opts.Registry.Lookup(msg.ActionID); ok && !a.Enabled {
		slog.Warn("disabled action chosen, ignoring", "action", msg.ActionID)
		return
	}

	l.closeSession("action")
	l.onActionChosen(msg.ActionID, snap)
}

func (l *Loop) onActionChosen(actionID string, snap selection.Snapshot) {
	l.handlersMu.RLock()
	h := l.onAction
	l.handlersMu.RUnlock()
	if h != nil {
		h.OnAction(actionID, snap)
		return
	}

	if l.opts.Handoff == nil {
		slog.Warn("no action handler and no hand-off configured, pick dropped", "action", actionID)
		return
	}
	if err := l.opts.Handoff.Write(actionID, snap.Text); err != nil {
		slog.Error("hand-off failed", "action", actionID, "err", err)
		l.showNotice("", fmt.Sprintf("Could not hand off %q: %v", actionID, err))
	}
}

// showNotice never blocks the loop: the notifier runs on its own goroutine.
func (l *Loop) showNotice(title, text string) {
	slog.Info("notice", "text", logutil.Sanitize(text))
	if l.opts.Notifier == nil {
		return
	}
	n := l.opts.Notifier
	l.notices.Add(1)
	go func() {
		defer l.notices.Done()
		if err := n.Notify(title, text); err != nil {
			slog.Warn("notice failed", "err", err)
		}
	}()
}
