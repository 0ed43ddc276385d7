package eventloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"instant-translator/src/actions"
	"instant-translator/src/popup"
	"instant-translator/src/selection"
)

type fakePresenter struct {
	mu     sync.Mutex
	menus  []popup.Menu
	events []string
	fail   error
}

type fakeHandle struct {
	p      *fakePresenter
	n      int
	closed bool
}

func (h *fakeHandle) Close() {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.p.events = append(h.p.events, fmt.Sprintf("close%d", h.n))
}

func (p *fakePresenter) Open(m popup.Menu) (popup.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	p.menus = append(p.menus, m)
	n := len(p.menus)
	p.events = append(p.events, fmt.Sprintf("open%d", n))
	return &fakeHandle{p: p, n: n}, nil
}

func (p *fakePresenter) snapshot() ([]popup.Menu, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]popup.Menu(nil), p.menus...), append([]string(nil), p.events...)
}

type recordingHandler struct {
	mu    sync.Mutex
	picks []string
	snaps []selection.Snapshot
}

func (h *recordingHandler) OnAction(actionID string, snap selection.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.picks = append(h.picks, actionID)
	h.snaps = append(h.snaps, snap)
}

func (h *recordingHandler) OnSelection(snap selection.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, snap)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snaps)
}

type fakeNotifier struct {
	ch chan string
}

func (n fakeNotifier) Notify(title, message string) error {
	n.ch <- message
	return nil
}

type fakeHandoff struct {
	mu   sync.Mutex
	recs []string
	err  error
}

func (f *fakeHandoff) Write(actionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, actionID+"|"+text)
	return f.err
}

func (f *fakeHandoff) records() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.recs...)
}

func startLoop(t *testing.T, opts Options) *Loop {
	t.Helper()
	l := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snap(text string, x, y int) selection.Snapshot {
	return selection.Snapshot{Text: text, X: x, Y: y, App: "Gedit"}
}

func TestOpenPickInvokesCallback(t *testing.T) {
	reg := &actions.Registry{}
	if err := reg.Register([]actions.Action{{ID: "translate", Label: "Translate", Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: reg})
	h := &recordingHandler{}
	l.SetActionHandler(h)

	l.OpenMenu(popup.Point{X: 100, Y: 200}, snap("hello world", 100, 200))
	waitFor(t, "menu open", func() bool { m, _ := p.snapshot(); return len(m) == 1 })

	menus, _ := p.snapshot()
	m := menus[0]
	if m.Anchor != (popup.Point{X: 100, Y: 200}) {
		t.Fatalf("anchor = %+v", m.Anchor)
	}
	if len(m.Items) != 1 || m.Items[0].Label != "Translate" || !m.Items[0].Enabled {
		t.Fatalf("items = %+v", m.Items)
	}
	if !strings.Contains(m.Info, "hello world") {
		t.Fatalf("info = %q", m.Info)
	}
	if !l.SessionOpen() {
		t.Fatal("expected open session")
	}

	m.OnPick("translate")
	waitFor(t, "callback", func() bool { return h.count() == 1 })

	h.mu.Lock()
	if h.picks[0] != "translate" || h.snaps[0].Text != "hello world" {
		t.Fatalf("callback got (%q, %q)", h.picks[0], h.snaps[0].Text)
	}
	h.mu.Unlock()

	waitFor(t, "session closed", func() bool { return !l.SessionOpen() })
	_, events := p.snapshot()
	if strings.Join(events, ",") != "open1,close1" {
		t.Fatalf("events = %v", events)
	}
}

func TestOpenWhileOpenClosesFirst(t *testing.T) {
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: &actions.Registry{}})

	l.OpenMenu(popup.Point{X: 1, Y: 1}, snap("first", 1, 1))
	l.OpenMenu(popup.Point{X: 2, Y: 2}, snap("second", 2, 2))

	waitFor(t, "second menu", func() bool { m, _ := p.snapshot(); return len(m) == 2 })
	_, events := p.snapshot()
	if strings.Join(events, ",") != "open1,close1,open2" {
		t.Fatalf("events = %v", events)
	}
	if !l.SessionOpen() {
		t.Fatal("second session should be open")
	}
}

func TestCloseMenuIdempotent(t *testing.T) {
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: &actions.Registry{}})

	l.CloseMenu()
	l.CloseMenu()
	syncLoop(t, l)

	_, events := p.snapshot()
	if len(events) != 0 {
		t.Fatalf("events = %v, want none", events)
	}
	if l.SessionOpen() {
		t.Fatal("no session expected")
	}
}

func TestToggleBeforeLoopDrains(t *testing.T) {
	p := &fakePresenter{}
	l := New(Options{Presenter: p, Registry: &actions.Registry{}})

	// first chord
	if l.SessionOpen() {
		t.Fatal("no session expected yet")
	}
	l.OpenMenu(popup.Point{X: 5, Y: 5}, snap("abc", 5, 5))
	// second chord arrives before the loop ran
	if !l.SessionOpen() {
		t.Fatal("queued open must be visible to the listener")
	}
	l.CloseMenu()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	waitFor(t, "toggle processed", func() bool { _, e := p.snapshot(); return len(e) == 2 })
	_, events := p.snapshot()
	if strings.Join(events, ",") != "open1,close1" {
		t.Fatalf("events = %v", events)
	}
	if l.SessionOpen() {
		t.Fatal("session should be closed after toggle")
	}
	cancel()
	<-l.Done()
}

func TestPickWithoutHandlerWritesHandoff(t *testing.T) {
	reg := &actions.Registry{}
	_ = reg.Register([]actions.Action{{ID: "translate", Enabled: true}})
	p := &fakePresenter{}
	ho := &fakeHandoff{}
	l := startLoop(t, Options{Presenter: p, Registry: reg, Handoff: ho})

	l.OpenMenu(popup.Point{}, snap("hello world", 0, 0))
	waitFor(t, "menu open", func() bool { m, _ := p.snapshot(); return len(m) == 1 })
	menus, _ := p.snapshot()
	menus[0].OnPick("translate")

	waitFor(t, "handoff", func() bool { return len(ho.records()) == 1 })
	if got := ho.records()[0]; got != "translate|hello world" {
		t.Fatalf("handoff = %q", got)
	}
}

func TestHandoffFailureShowsNotice(t *testing.T) {
	notes := make(chan string, 4)
	ho := &fakeHandoff{err: errors.New("read-only fs")}
	l := startLoop(t, Options{Presenter: &fakePresenter{}, Registry: &actions.Registry{}, Handoff: ho, Notifier: fakeNotifier{notes}})

	l.OnActionChosen("translate", snap("x", 0, 0))
	select {
	case msg := <-notes:
		if !strings.Contains(msg, "read-only fs") {
			t.Fatalf("notice = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notice")
	}
}

func TestStalePickIgnored(t *testing.T) {
	reg := &actions.Registry{}
	_ = reg.Register([]actions.Action{{ID: "translate", Enabled: true}})
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: reg})
	h := &recordingHandler{}
	l.SetActionHandler(h)

	l.OpenMenu(popup.Point{}, snap("one", 0, 0))
	waitFor(t, "menu open", func() bool { m, _ := p.snapshot(); return len(m) == 1 })
	menus, _ := p.snapshot()
	menus[0].OnDismiss("focus-out")
	waitFor(t, "dismissed", func() bool { return !l.SessionOpen() })

	menus[0].OnPick("translate")
	syncLoop(t, l)
	if h.count() != 0 {
		t.Fatal("pick from a dismissed menu must be ignored")
	}
}

func TestDisabledActionNotActivatable(t *testing.T) {
	reg := &actions.Registry{}
	_ = reg.Register([]actions.Action{{ID: "off", Enabled: false}})
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: reg})
	h := &recordingHandler{}
	l.SetActionHandler(h)

	l.OpenMenu(popup.Point{}, snap("x", 0, 0))
	waitFor(t, "menu open", func() bool { m, _ := p.snapshot(); return len(m) == 1 })
	menus, _ := p.snapshot()
	if menus[0].Items[0].Enabled {
		t.Fatal("disabled action must be shown as disabled")
	}
	menus[0].OnPick("off")
	syncLoop(t, l)
	if h.count() != 0 {
		t.Fatal("disabled action must not reach the handler")
	}
	if !l.SessionOpen() {
		t.Fatal("session should stay open")
	}
}

func TestShowNoticeDoesNotBlockLoop(t *testing.T) {
	block := make(chan string) // unbuffered: Notify blocks until read
	p := &fakePresenter{}
	l := startLoop(t, Options{Presenter: p, Registry: &actions.Registry{}, Notifier: fakeNotifier{block}})

	l.ShowNotice("Please select some text first.")
	l.OpenMenu(popup.Point{}, snap("x", 0, 0))
	waitFor(t, "menu open while notice pending", func() bool { m, _ := p.snapshot(); return len(m) == 1 })

	if msg := <-block; msg != "Please select some text first." {
		t.Fatalf("notice = %q", msg)
	}
}

func TestOpenFailureResetsState(t *testing.T) {
	p := &fakePresenter{fail: errors.New("no display")}
	l := startLoop(t, Options{Presenter: p, Registry: &actions.Registry{}})
	l.OpenMenu(popup.Point{}, snap("x", 0, 0))
	waitFor(t, "state reset", func() bool { return !l.SessionOpen() })
}

func TestSelectionHandler(t *testing.T) {
	l := startLoop(t, Options{Presenter: &fakePresenter{}, Registry: &actions.Registry{}})
	h := &recordingHandler{}
	l.SetSelectionHandler(h)

	l.PublishSelection(snap("a", 0, 0))
	l.PublishSelection(snap("b", 0, 0))
	waitFor(t, "selection events", func() bool { return h.count() == 2 })
}

func syncLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestShutdownDeliversQueuedPick(t *testing.T) {
	reg := &actions.Registry{}
	if err := reg.Register([]actions.Action{{ID: "translate", Label: "Translate", Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		p := &fakePresenter{}
		l := New(Options{Presenter: p, Registry: reg})
		h := &recordingHandler{}
		l.SetActionHandler(h)

		l.OnActionChosen("translate", snap("hello world", 1, 2))
		l.OpenMenu(popup.Point{X: 1, Y: 2}, snap("late", 1, 2))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
		if h.count() != 1 {
			t.Fatalf("run %d: picks delivered = %d, want 1", i, h.count())
		}
		if menus, _ := p.snapshot(); len(menus) != 0 {
			t.Fatalf("run %d: menu opened during shutdown", i)
		}
		if l.SessionOpen() {
			t.Fatalf("run %d: session left open", i)
		}
	}
}
