// Package notification shows desktop notices through the freedesktop
// notification service.
package notification

import (
	"log/slog"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
)

// DefaultTitle heads every notice unless the caller supplies one.
const DefaultTitle = "Instant Translator"

const maxNoticeLength = 200

// Notifier sends notices via beeep.
type Notifier struct {
	// Icon is a path or embedded image bytes; empty uses the default.
	Icon any
}

// Notify shows a transient notice. It does not wait for the user.
func (n Notifier) Notify(title, message string) error {
	if title == "" {
		title = DefaultTitle
	}
	message = truncate(message, maxNoticeLength)
	slog.Debug("notice", "title", title, "message", message)
	return beeep.Notify(title, message, n.icon())
}

// truncate cuts message to limit runes, keeping it valid UTF-8.
func truncate(message string, limit int) string {
	if utf8.RuneCountInString(message) <= limit {
		return message
	}
	return string([]rune(message)[:limit]) + "..."
}

func (n Notifier) icon() any {
	if n.Icon == nil {
		return ""
	}
	return n.Icon
}

// ShowBlockingError shows a modal alert for startup failures.
func ShowBlockingError(title, message string) {
	slog.Error(message, "title", title)
	if err := beeep.Alert(title, message, ""); err != nil {
		slog.Warn("alert failed", "err", err)
	}
}
