// Package popup describes the action menu independently of the toolkit that
// draws it, and holds the text rules for its title and info line.
package popup

import (
	"fmt"
	"unicode/utf8"

	"instant-translator/src/actions"
)

// NoActionsLabel is shown when the registry is empty.
const NoActionsLabel = "No AI actions available"

const (
	titleLimit = 30
	titleKeep  = 27
	infoLimit  = 50
	infoKeep   = 47
)

// Point is a screen position in root-window coordinates.
type Point struct {
	X, Y int
}

// Item is one menu row.
type Item struct {
	ID      string
	Label   string
	Enabled bool
}

// Menu is everything a Presenter needs to draw one session.
// OnPick and OnDismiss may be called from any goroutine, at most once in total.
type Menu struct {
	Anchor Point
	Title  string
	Info   string
	Items  []Item

	OnPick    func(id string)
	OnDismiss func(reason string)
}

// Handle closes a presented menu. Close must be idempotent.
type Handle interface {
	Close()
}

// Presenter draws menus.
type Presenter interface {
	Open(m Menu) (Handle, error)
}

// Build assembles the menu for text anchored at p from the registered set.
// Disabled actions are kept so they can be shown as inactive.
func Build(p Point, text string, set []actions.Action) Menu {
	m := Menu{Anchor: p, Title: Title(text), Info: InfoLine(text)}
	for _, a := range set {
		m.Items = append(m.Items, Item{ID: a.ID, Label: a.Label, Enabled: a.Enabled})
	}
	return m
}

// Title is "AI Translate: <text>", shortened to 27 characters plus "..." past 30.
func Title(text string) string {
	return "AI Translate: " + clip(text, titleLimit, titleKeep)
}

// InfoLine is "Selected: <text>", shortened to 47 characters plus "..." past 50.
func InfoLine(text string) string {
	return fmt.Sprintf("Selected: %s", clip(text, infoLimit, infoKeep))
}

func clip(text string, limit, keep int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	r := []rune(text)
	return string(r[:keep]) + "..."
}
