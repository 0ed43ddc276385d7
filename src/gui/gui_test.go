package gui

import (
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
)

func TestTogglePauseDoesNotBlock(t *testing.T) {
	a := test.NewApp()
	t.Cleanup(a.Quit)
	g := NewWithApp(a)

	release := make(chan struct{})
	var mu sync.Mutex
	var calls []bool
	onPause := func(paused bool) {
		<-release
		mu.Lock()
		calls = append(calls, paused)
		mu.Unlock()
	}

	done := make(chan bool, 1)
	go func() { done <- g.togglePause(onPause) }()
	select {
	case paused := <-done:
		if !paused {
			t.Fatal("first toggle should pause")
		}
	case <-time.After(time.Second):
		t.Fatal("togglePause waited for the pause callback")
	}
	if !g.Paused() {
		t.Fatal("Paused() = false after toggle")
	}

	// resume and pause again while the first call is still blocked
	g.togglePause(onPause)
	g.togglePause(onPause)
	close(release)
	g.pending.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) == 0 || !calls[len(calls)-1] {
		t.Fatalf("calls = %v, want to end paused", calls)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] == calls[i-1] {
			t.Fatalf("repeated state in calls %v", calls)
		}
	}
}
