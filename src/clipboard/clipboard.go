// Package clipboard reads and writes X selections and implements the scoped
// swap-and-restore exchange used for text injection.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrTransport wraps every failure of the underlying clipboard tool or library.
var ErrTransport = errors.New("clipboard transport failure")

// DefaultSettle is the pause between writing the clipboard and acting on it.
const DefaultSettle = 50 * time.Millisecond

// Backend is one clipboard surface (xclip process or in-process library).
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Exchange serializes access to a Backend and owns the swap-and-restore protocol.
type Exchange struct {
	backend Backend
	settle  time.Duration

	mu sync.Mutex
}

// NewExchange wraps b. A negative settle disables the pause; zero uses DefaultSettle.
func NewExchange(b Backend, settle time.Duration) *Exchange {
	if settle == 0 {
		settle = DefaultSettle
	}
	if settle < 0 {
		settle = 0
	}
	return &Exchange{backend: b, settle: settle}
}

// Read returns the current clipboard payload, or false when none is available.
func (e *Exchange) Read(ctx context.Context) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read(ctx)
}

func (e *Exchange) read(ctx context.Context) ([]byte, bool) {
	data, err := e.backend.Read(ctx)
	if err != nil {
		slog.Debug("clipboard read failed", "err", err)
		return nil, false
	}
	return data, true
}

// Write replaces the clipboard payload.
func (e *Exchange) Write(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.write(ctx, data)
}

func (e *Exchange) write(ctx context.Context, data []byte) error {
	if err := e.backend.Write(ctx, data); err != nil {
		if errors.Is(err, ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// SwapAndRestore snapshots the clipboard, writes value, waits for the settle
// delay, runs action and then restores the snapshot on every exit path,
// including a panicking action. A failed restore is logged only.
// An absent prior payload is restored as an empty one.
func (e *Exchange) SwapAndRestore(ctx context.Context, value []byte, action func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, hadPrior := e.read(ctx)
	if err := e.write(ctx, value); err != nil {
		return err
	}

	defer func() {
		restore := prior
		if !hadPrior {
			restore = []byte{}
		}
		// Restore even if the caller's context is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := e.write(rctx, restore); rerr != nil {
			slog.Warn("clipboard restore failed", "err", rerr, "bytes", len(restore))
			return
		}
		slog.Debug("clipboard restored", "bytes", len(restore), "had_prior", hadPrior)
	}()

	if e.settle > 0 {
		select {
		case <-time.After(e.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return action()
}

// Memory is an in-process Backend. Tests use it in place of a real clipboard.
type Memory struct {
	// Fail, when set, is returned by every Write.
	Fail error
	// Log records every successful Write in order.
	Log [][]byte

	mu   sync.Mutex
	data []byte
	set  bool
}

// NewMemory returns a Memory holding initial, or an empty clipboard when initial is nil.
func NewMemory(initial []byte) *Memory {
	m := &Memory{}
	if initial != nil {
		m.data = bytes.Clone(initial)
		m.set = true
	}
	return m
}

func (m *Memory) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil, fmt.Errorf("%w: clipboard empty", ErrTransport)
	}
	return bytes.Clone(m.data), nil
}

func (m *Memory) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.data = bytes.Clone(data)
	m.set = true
	m.Log = append(m.Log, bytes.Clone(data))
	return nil
}

// Contents returns the current payload.
func (m *Memory) Contents() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data)
}
