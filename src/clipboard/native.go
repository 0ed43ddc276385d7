package clipboard

import (
	"context"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var initOnce struct {
	sync.Once
	err error
}

// Native uses golang.design/x/clipboard (CLIPBOARD selection only).
type Native struct{}

// NewNative initializes the library once per process.
func NewNative() (*Native, error) {
	initOnce.Do(func() { initOnce.err = clipboard.Init() })
	if initOnce.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, initOnce.err)
	}
	return &Native{}, nil
}

func (Native) Read(ctx context.Context) ([]byte, error) {
	data := clipboard.Read(clipboard.FmtText)
	if data == nil {
		return nil, fmt.Errorf("%w: no text on clipboard", ErrTransport)
	}
	return data, nil
}

func (Native) Write(ctx context.Context, data []byte) error {
	// The returned channel fires when another owner takes the selection; not needed here.
	_ = clipboard.Write(clipboard.FmtText, data)
	return nil
}
