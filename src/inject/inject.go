// Package inject replaces text in the focused application, either by pasting
// through a swapped clipboard or by typing it key by key.
//
// Neither strategy can tell whether the application accepted the text: success
// only means every command was issued without a transport error.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jezek/xgb/xproto"

	"instant-translator/src/clipboard"
	"instant-translator/src/display"
)

// ErrTransport is the same sentinel the clipboard layer uses.
var ErrTransport = clipboard.ErrTransport

// Strategy selects how text reaches the target.
type Strategy string

const (
	StrategyClipboard  Strategy = "clipboard"
	StrategyKeystrokes Strategy = "keystrokes"
)

// Options tunes the delays between synthesized steps.
type Options struct {
	Strategy     Strategy
	SelectSettle time.Duration
	PasteSettle  time.Duration
	KeyDelay     time.Duration
	ClickSettle  time.Duration
	CharMap      CharMap
}

// DefaultOptions returns the clipboard strategy with the stock timings.
func DefaultOptions() Options {
	return Options{
		Strategy:     StrategyClipboard,
		SelectSettle: 50 * time.Millisecond,
		PasteSettle:  100 * time.Millisecond,
		KeyDelay:     10 * time.Millisecond,
		ClickSettle:  75 * time.Millisecond,
	}
}

// Injector writes text into the focused window.
type Injector struct {
	kb    Keyboard
	clip  *clipboard.Exchange
	opts  Options
	sleep func(time.Duration)
}

// New builds an injector. clip may be nil when only keystrokes are used.
func New(kb Keyboard, clip *clipboard.Exchange, opts Options) *Injector {
	if opts.Strategy == "" {
		opts.Strategy = StrategyClipboard
	}
	if opts.CharMap == nil {
		opts.CharMap = USCharMap()
	}
	return &Injector{kb: kb, clip: clip, opts: opts, sleep: time.Sleep}
}

// Inject replaces the current content with text using the configured strategy.
func (in *Injector) Inject(ctx context.Context, text string) error {
	return in.InjectWith(ctx, text, in.opts.Strategy)
}

// InjectWith is Inject with an explicit strategy.
// Once started, an injection runs to completion even if ctx is cancelled.
func (in *Injector) InjectWith(ctx context.Context, text string, s Strategy) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	var err error
	switch s {
	case StrategyClipboard:
		err = in.viaClipboard(ctx, text)
	case StrategyKeystrokes:
		err = in.viaKeystrokes(text)
	default:
		return fmt.Errorf("unknown injection strategy %q", s)
	}
	if err != nil {
		slog.Error("injection failed", "strategy", s, "err", err)
		return err
	}
	slog.Info("text injected", "strategy", s, "chars", len([]rune(text)), "elapsed", time.Since(start))
	return nil
}

// InjectAt clicks at (x, y) to move focus there before injecting.
func (in *Injector) InjectAt(ctx context.Context, text string, x, y int) error {
	if err := in.kb.Click(x, y); err != nil {
		return fmt.Errorf("%w: click at %d,%d: %v", ErrTransport, x, y, err)
	}
	in.sleep(in.opts.ClickSettle)
	return in.Inject(ctx, text)
}

func (in *Injector) viaClipboard(ctx context.Context, text string) error {
	if in.clip == nil {
		return fmt.Errorf("%w: no clipboard configured", ErrTransport)
	}
	return in.clip.SwapAndRestore(ctx, []byte(text), func() error {
		if err := in.kb.Press(display.KeyControlL, 'a'); err != nil {
			return fmt.Errorf("%w: select all: %v", ErrTransport, err)
		}
		in.sleep(in.opts.SelectSettle)
		if err := in.kb.Press(display.KeyControlL, 'v'); err != nil {
			return fmt.Errorf("%w: paste: %v", ErrTransport, err)
		}
		in.sleep(in.opts.PasteSettle)
		return nil
	})
}

func (in *Injector) viaKeystrokes(text string) error {
	skipped := 0
	for _, r := range text {
		st, ok := in.opts.CharMap[r]
		if !ok {
			skipped++
			continue
		}
		keys := []xproto.Keysym{st.Keysym}
		if st.Shift {
			keys = []xproto.Keysym{display.KeyShiftL, st.Keysym}
		}
		if err := in.kb.Press(keys...); err != nil {
			if errors.Is(err, ErrUnmapped) {
				skipped++
				continue
			}
			return fmt.Errorf("%w: key %q: %v", ErrTransport, r, err)
		}
		in.sleep(in.opts.KeyDelay)
	}
	if skipped > 0 {
		slog.Warn("skipped unmappable characters", "count", skipped)
	}
	return nil
}
