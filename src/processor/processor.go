// Package processor sends selected text to the service that transforms it.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"instant-translator/src/actions"
	"instant-translator/src/llm"
	"instant-translator/src/logutil"
)

// ErrIPC covers timeouts and malformed replies from the processing service.
var ErrIPC = errors.New("processing request failed")

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// FallbackPrefix marks text that went through the fallback path.
const FallbackPrefix = "[PROCESSED] "

// Processor turns text into processed text for one operation.
type Processor interface {
	Process(ctx context.Context, text, operation string) (string, error)
}

// Fallback is what gets injected when processing failed.
func Fallback(text string) string { return FallbackPrefix + text }

func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// LLM processes text through the OpenRouter client, looking up each
// operation's instruction in the registry.
type LLM struct {
	Registry *actions.Registry
	Timeout  time.Duration
}

func (p *LLM) Process(ctx context.Context, text, operation string) (string, error) {
	ctx, cancel := bounded(ctx, p.Timeout)
	defer cancel()

	instruction := p.instruction(operation)
	start := time.Now()
	out, err := llm.Rewrite(ctx, instruction, text)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIPC, operation, err)
	}
	slog.Info("text processed", "operation", operation, "elapsed", time.Since(start), "result", logutil.Sanitize(out))
	return out, nil
}

func (p *LLM) instruction(operation string) string {
	if p.Registry != nil {
		for _, a := range p.Registry.List() {
			if (a.Operation == operation || a.ID == operation) && a.Instruction != "" {
				return a.Instruction
			}
		}
	}
	return fmt.Sprintf("Apply the operation %q to the text.", operation)
}
