package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Selection names an X selection understood by xclip.
type Selection string

const (
	Clipboard Selection = "clipboard"
	Primary   Selection = "primary"
)

const defaultXclipTimeout = time.Second

// Xclip drives the xclip binary. A Read with nothing selected fails, since
// xclip exits non-zero when the owner offers no text target.
type Xclip struct {
	Selection Selection
	Timeout   time.Duration
}

// NewXclip returns a backend bound to sel.
func NewXclip(sel Selection) *Xclip {
	return &Xclip{Selection: sel, Timeout: defaultXclipTimeout}
}

func (x *Xclip) timeout() time.Duration {
	if x.Timeout <= 0 {
		return defaultXclipTimeout
	}
	return x.Timeout
}

func (x *Xclip) Read(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout())
	defer cancel()
	out, err := exec.CommandContext(ctx, "xclip", "-selection", string(x.Selection), "-o").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: xclip read %s: %v", ErrTransport, x.Selection, err)
	}
	return out, nil
}

func (x *Xclip) Write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, "xclip", "-selection", string(x.Selection), "-i")
	cmd.Stdin = bytes.NewReader(data)
	// xclip forks a child that keeps serving the selection; only the parent is waited on.
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: xclip write %s: %v", ErrTransport, x.Selection, err)
	}
	return nil
}
