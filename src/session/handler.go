package session

import (
	"context"
	"log/slog"
	"time"

	"instant-translator/src/actions"
	"instant-translator/src/logutil"
	"instant-translator/src/selection"
	"instant-translator/src/worker"
)

// BusyNotice is shown when a pick arrives while the previous one is still running.
const BusyNotice = "Still working on the previous request."

// Noticer shows transient notices; the menu coordinator satisfies it.
type Noticer interface {
	ShowNotice(message string)
}

// Handler is the default action callback: it processes picks on the worker
// pool and injects the result back where the selection was.
type Handler struct {
	Ctx      context.Context
	Pool     *worker.Pool
	Registry *actions.Registry
	Process  ProcessFunc
	Injector Injector
	Notices  Noticer
	Deadline time.Duration
	// ClickBack clicks at the captured position before injecting.
	ClickBack bool
	// Selections, when set, receives every published selection.
	Selections func(selection.Snapshot)
}

// OnAction queues the pick. It never blocks the caller.
func (h *Handler) OnAction(actionID string, snap selection.Snapshot) {
	operation := actionID
	if a, ok := h.Registry.Lookup(actionID); ok && a.Operation != "" {
		operation = a.Operation
	}
	ctx := h.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ok := h.Pool.Submit(ctx, actionID, func(ctx context.Context) {
		if ctx.Err() != nil {
			slog.Info("pick skipped, shutting down", "action", actionID)
			return
		}
		res, err := Execute(ctx, Request{Text: snap.Text, Operation: operation}, Options{
			Deadline: h.Deadline,
			Process:  h.Process,
			Target:   InjectTarget{Injector: h.Injector, At: h.ClickBack, X: snap.RootX, Y: snap.RootY},
			Fallback: true,
		})
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("pick abandoned on shutdown", "action", actionID, "err", err)
				return
			}
			slog.Error("action failed", "action", actionID, "err", err)
			h.notice("Could not replace the text: " + err.Error())
			return
		}
		if res.Fallback {
			slog.Warn("processing failed, fallback text injected", "action", actionID)
		}
		slog.Info("action completed", "action", actionID, "app", snap.App, "result", logutil.Sanitize(res.Text))
	})
	if !ok {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("worker busy, pick dropped", "action", actionID)
		h.notice(BusyNotice)
	}
}

// OnSelection forwards a published selection.
func (h *Handler) OnSelection(snap selection.Snapshot) {
	if h.Selections != nil {
		h.Selections(snap)
	}
}

func (h *Handler) notice(msg string) {
	if h.Notices != nil {
		h.Notices.ShowNotice(msg)
	}
}
