package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitBackPressure(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	if !p.Submit(context.Background(), "first", func(context.Context) {
		close(started)
		<-release
	}) {
		t.Fatal("first submit dropped")
	}
	<-started

	// worker busy, queue empty: one more fits
	if !p.Submit(context.Background(), "queued", func(context.Context) {}) {
		t.Fatal("queued submit dropped")
	}
	// worker busy, queue full
	if p.Submit(context.Background(), "dropped", func(context.Context) {}) {
		t.Fatal("expected drop while busy and queued")
	}

	close(release)
	p.Close()
}

func TestCloseDrains(t *testing.T) {
	p := New(2)
	var ran atomic.Int32
	for i := 0; i < 2; i++ {
		for !p.Submit(context.Background(), "job", func(context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		}) {
			time.Sleep(time.Millisecond)
		}
	}
	p.Close()
	p.Close()
	if ran.Load() != 2 {
		t.Fatalf("ran %d jobs, want 2", ran.Load())
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(1)
	done := make(chan struct{})
	p.Submit(context.Background(), "boom", func(context.Context) { panic("boom") })
	for !p.Submit(context.Background(), "after", func(context.Context) { close(done) }) {
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
	p.Close()
}

func TestJobGetsContext(t *testing.T) {
	p := New(1)
	type key struct{}
	got := make(chan any, 1)
	ctx := context.WithValue(context.Background(), key{}, "v")
	p.Submit(ctx, "ctx", func(ctx context.Context) { got <- ctx.Value(key{}) })
	if v := <-got; v != "v" {
		t.Fatalf("ctx value = %v", v)
	}
	p.Close()
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1)
	p.Close()
	if p.Submit(context.Background(), "late", func(context.Context) { t.Error("job ran after Close") }) {
		t.Fatal("Submit after Close should report a drop")
	}
}
