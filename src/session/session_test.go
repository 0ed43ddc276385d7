package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"instant-translator/src/actions"
	"instant-translator/src/selection"
	"instant-translator/src/worker"
)

type fakeInjector struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan struct{}
}

func (f *fakeInjector) record(s string) error {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

func (f *fakeInjector) Inject(_ context.Context, text string) error {
	return f.record("inject " + text)
}

func (f *fakeInjector) InjectAt(_ context.Context, text string, x, y int) error {
	return f.record(fmt.Sprintf("inject@%d,%d %s", x, y, text))
}

func (f *fakeInjector) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recTarget struct {
	ok   []string
	fail []error
}

func (r *recTarget) OnSuccess(_ context.Context, text string) error {
	r.ok = append(r.ok, text)
	return nil
}

func (r *recTarget) OnFailure(err error) error {
	r.fail = append(r.fail, err)
	return nil
}

func TestExecute(t *testing.T) {
	ipcErr := errors.New("timeout")
	tests := []struct {
		name     string
		process  ProcessFunc
		fallback bool
		wantText string
		wantFB   bool
		wantErr  bool
	}{
		{"success", func(_ context.Context, text, op string) (string, error) { return op + ":" + text, nil }, true, "translate:hola", false, false},
		{"fallback on failure", func(context.Context, string, string) (string, error) { return "", ipcErr }, true, "[PROCESSED] hola", true, false},
		{"failure without fallback", func(context.Context, string, string) (string, error) { return "", ipcErr }, false, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recTarget{}
			res, err := Execute(context.Background(), Request{Text: "hola", Operation: "translate"}, Options{
				Process: tt.process, Target: target, Fallback: tt.fallback,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				if len(target.fail) != 1 || len(target.ok) != 0 {
					t.Fatalf("target = %+v", target)
				}
				return
			}
			if res.Text != tt.wantText || res.Fallback != tt.wantFB {
				t.Fatalf("result = %+v", res)
			}
			if len(target.ok) != 1 || target.ok[0] != tt.wantText {
				t.Fatalf("target = %+v", target)
			}
		})
	}
}

func TestExecuteDeadline(t *testing.T) {
	target := &recTarget{}
	_, err := Execute(context.Background(), Request{Text: "x", Operation: "slow"}, Options{
		Deadline: 10 * time.Millisecond,
		Process: func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		Target: target,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestStdoutTarget(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Execute(context.Background(), Request{Text: "a", Operation: "op"}, Options{
		Process: func(_ context.Context, text, _ string) (string, error) { return text + "!", nil },
		Target:  StdoutTarget{Writer: &buf},
	}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a!" {
		t.Fatalf("stdout = %q", buf.String())
	}
}

type noticeRec struct {
	mu   sync.Mutex
	msgs []string
}

func (n *noticeRec) ShowNotice(m string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, m)
	n.mu.Unlock()
}

func TestHandlerInjectsAtSelection(t *testing.T) {
	reg := &actions.Registry{}
	_ = reg.Register([]actions.Action{{ID: "fr", Operation: "translate", Enabled: true}})
	inj := &fakeInjector{done: make(chan struct{}, 1)}
	pool := worker.New(1)
	defer pool.Close()

	var gotOp string
	h := &Handler{
		Pool:     pool,
		Registry: reg,
		Injector: inj,
		Process: func(_ context.Context, text, op string) (string, error) {
			gotOp = op
			return "bonjour", nil
		},
		ClickBack: true,
	}
	h.OnAction("fr", selection.Snapshot{Text: "hello", X: 2, Y: 3, RootX: 5, RootY: 6})

	select {
	case <-inj.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no injection")
	}
	if got := inj.list(); len(got) != 1 || got[0] != "inject@5,6 bonjour" {
		t.Fatalf("calls = %v", got)
	}
	if gotOp != "translate" {
		t.Fatalf("operation = %q", gotOp)
	}
}

func TestHandlerBusyNotice(t *testing.T) {
	release := make(chan struct{})
	inj := &fakeInjector{}
	pool := worker.New(1)
	notes := &noticeRec{}
	h := &Handler{
		Pool:     pool,
		Registry: &actions.Registry{},
		Injector: inj,
		Notices:  notes,
		Process: func(context.Context, string, string) (string, error) {
			<-release
			return "x", nil
		},
	}
	snap := selection.Snapshot{Text: "t"}
	// one running, one queued, third dropped
	h.OnAction("a", snap)
	time.Sleep(20 * time.Millisecond)
	h.OnAction("b", snap)
	h.OnAction("c", snap)

	close(release)
	pool.Close()

	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.msgs) != 1 || notes.msgs[0] != BusyNotice {
		t.Fatalf("notices = %v", notes.msgs)
	}
	if n := len(inj.list()); n != 2 {
		t.Fatalf("injections = %d, want 2", n)
	}
}

func TestHandlerInjectFailureNotice(t *testing.T) {
	inj := &fakeInjector{err: errors.New("xdotool missing")}
	pool := worker.New(1)
	notes := &noticeRec{}
	h := &Handler{
		Pool: pool, Registry: &actions.Registry{}, Injector: inj, Notices: notes,
		Process: func(context.Context, string, string) (string, error) { return "y", nil },
	}
	h.OnAction("a", selection.Snapshot{Text: "t"})
	pool.Close()
	if len(notes.msgs) != 1 {
		t.Fatalf("notices = %v", notes.msgs)
	}
}

func TestHandlerSelections(t *testing.T) {
	var got []string
	h := &Handler{Selections: func(s selection.Snapshot) { got = append(got, s.Text) }}
	h.OnSelection(selection.Snapshot{Text: "a"})
	(&Handler{}).OnSelection(selection.Snapshot{Text: "ignored"})
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v", got)
	}
}

func TestExecuteCancelledSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	target := &recTarget{}
	go func() {
		<-started
		cancel()
	}()
	_, err := Execute(ctx, Request{Text: "hello world", Operation: "translate"}, Options{
		Process: func(ctx context.Context, _, _ string) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
		Target:   target,
		Fallback: true,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(target.ok) != 0 || len(target.fail) != 1 {
		t.Fatalf("target = %+v", target)
	}

	// already cancelled: Process is never called
	called := false
	_, err = Execute(ctx, Request{Text: "x", Operation: "op"}, Options{
		Process:  func(context.Context, string, string) (string, error) { called = true; return "y", nil },
		Target:   &recTarget{},
		Fallback: true,
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestHandlerShutdownInjectsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inj := &fakeInjector{}
	notes := &noticeRec{}
	pool := worker.New(1)
	started := make(chan struct{}, 2)
	h := &Handler{
		Ctx:      ctx,
		Pool:     pool,
		Registry: &actions.Registry{},
		Injector: inj,
		Notices:  notes,
		Process: func(ctx context.Context, _, _ string) (string, error) {
			started <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	snap := selection.Snapshot{Text: "hello world"}
	h.OnAction("translate", snap)
	<-started
	// waits in the queue slot behind the running pick
	h.OnAction("translate", snap)

	cancel()
	pool.Close()

	if got := inj.list(); len(got) != 0 {
		t.Fatalf("injections after shutdown = %v", got)
	}
	if len(started) != 0 {
		t.Fatal("queued pick was processed after shutdown")
	}
	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.msgs) != 0 {
		t.Fatalf("notices = %v", notes.msgs)
	}
}
