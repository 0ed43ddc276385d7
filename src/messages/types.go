package messages

import (
	"instant-translator/src/popup"
	"instant-translator/src/selection"
)

// Message is a work item posted onto the coordinator's dispatch queue.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeSelectionChanged = "SelectionChanged"
	TypeOpenMenu         = "OpenMenu"
	TypeCloseMenu        = "CloseMenu"
	TypeMenuDismissed    = "MenuDismissed"
	TypeActionChosen     = "ActionChosen"
	TypeShowNotice       = "ShowNotice"
)

// SelectionChanged - posted by the poller for each new non-empty selection
type SelectionChanged struct {
	Snapshot selection.Snapshot
}

func (m SelectionChanged) Type() string { return TypeSelectionChanged }

// OpenMenu - posted by the hotkey listener to open a session at Position
type OpenMenu struct {
	Position popup.Point
	Snapshot selection.Snapshot
}

func (m OpenMenu) Type() string { return TypeOpenMenu }

// CloseMenu - toggle-off or explicit close request
type CloseMenu struct {
	Reason string
}

func (m CloseMenu) Type() string { return TypeCloseMenu }

// MenuDismissed - posted by the presenter when the window went away on its own
// (focus loss, Escape, window manager close)
type MenuDismissed struct {
	SessionID uint64
	Reason    string
}

func (m MenuDismissed) Type() string { return TypeMenuDismissed }

// ActionChosen - the user picked ActionID. SessionID zero means "whatever
// session is open" and Snapshot must then be set.
type ActionChosen struct {
	SessionID uint64
	ActionID  string
	Snapshot  *selection.Snapshot
}

func (m ActionChosen) Type() string { return TypeActionChosen }

// ShowNotice - transient informational message
type ShowNotice struct {
	Title string
	Text  string
}

func (m ShowNotice) Type() string { return TypeShowNotice }
