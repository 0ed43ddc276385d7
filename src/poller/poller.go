// Package poller samples the selection on a fixed interval and publishes each
// distinct non-empty value exactly once.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"instant-translator/src/logutil"
	"instant-translator/src/selection"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 100 * time.Millisecond

// PublishFunc receives new selections. It must not block.
type PublishFunc func(selection.Snapshot)

// Poller is Stopped until Start and again after Stop returns.
type Poller struct {
	source   selection.Source
	interval time.Duration
	publish  PublishFunc

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// owned by the loop goroutine
	last string
}

// New builds a stopped poller. interval <= 0 uses DefaultInterval.
func New(src selection.Source, interval time.Duration, publish PublishFunc) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{source: src, interval: interval, publish: publish}
}

// Start launches the sampling loop. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)
	p.wg.Add(1)
	go p.loop(ctx)
	slog.Info("selection poller started", "interval", p.interval)
}

// Stop signals the loop and blocks until it has exited.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.running.Store(false)
	slog.Info("selection poller stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool { return p.running.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick samples once. A panic in the source is logged and the loop goes on.
func (p *Poller) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in selection poll", "panic", r)
		}
	}()

	snap, ok := p.source.Capture(ctx)
	if !ok || snap.Empty() || snap.Text == p.last {
		return
	}
	p.last = snap.Text
	slog.Debug("selection changed", "chars", snap.Length(), "app", snap.App, "text", logutil.Sanitize(snap.Text))
	if p.publish != nil {
		p.publish(snap)
	}
}
