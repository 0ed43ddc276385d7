// Package session runs one pick end to end: process the selected text, fall
// back to a marked copy on failure, and deliver the result to a target.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"instant-translator/src/processor"
	"instant-translator/src/singleinstance"
)

// ProcessFunc transforms text for one operation.
type ProcessFunc func(ctx context.Context, text, operation string) (string, error)

// ResultTarget receives the outcome of a run.
type ResultTarget interface {
	OnSuccess(ctx context.Context, text string) error
	OnFailure(err error) error
}

type Options struct {
	Deadline time.Duration
	Process  ProcessFunc
	Target   ResultTarget
	// Fallback delivers processor.Fallback(text) when processing fails instead
	// of reporting the failure.
	Fallback bool
}

type Request struct {
	Text      string
	Operation string
}

type Result struct {
	Text     string
	Fallback bool
}

func Execute(ctx context.Context, req Request, opts Options) (Result, error) {
	if opts.Process == nil {
		return Result{}, errors.New("Process is required")
	}
	if opts.Target == nil {
		return Result{}, errors.New("Target is required")
	}
	if req.Text == "" {
		err := errors.New("nothing to process")
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = processor.DefaultTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	res := Result{}
	text, err := opts.Process(jobCtx, req.Text, req.Operation)
	if err != nil {
		// Cancellation of the caller is not a processing failure.
		if !opts.Fallback || ctx.Err() != nil {
			_ = opts.Target.OnFailure(err)
			return Result{}, err
		}
		text = processor.Fallback(req.Text)
		res.Fallback = true
	}

	if err := opts.Target.OnSuccess(ctx, text); err != nil {
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}
	res.Text = text
	return res, nil
}

// Injector is the part of the text injector targets need.
type Injector interface {
	Inject(ctx context.Context, text string) error
	InjectAt(ctx context.Context, text string, x, y int) error
}

// InjectTarget replaces the focused text, optionally clicking at a position first.
type InjectTarget struct {
	Injector Injector
	At       bool
	X, Y     int
}

func (t InjectTarget) OnSuccess(ctx context.Context, text string) error {
	if t.At {
		return t.Injector.InjectAt(ctx, text, t.X, t.Y)
	}
	return t.Injector.Inject(ctx, text)
}

func (InjectTarget) OnFailure(err error) error { return nil }

type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(_ context.Context, text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprint(w, text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget injects in the resident and reports back to the client that
// asked for it.
type DelegatedTarget struct {
	Conn     singleinstance.Conn
	Injector Injector
}

func (t DelegatedTarget) OnSuccess(ctx context.Context, text string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.Injector != nil {
		if err := t.Injector.Inject(ctx, text); err != nil {
			return fmt.Errorf("inject: %w", err)
		}
	}
	return t.Conn.RespondSuccess(text)
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}
