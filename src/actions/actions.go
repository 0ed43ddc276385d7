// Package actions holds the menu action set registered by the processing
// collaborator and the JSON format it is configured with.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
)

var (
	ErrEmptyID     = errors.New("action id is empty")
	ErrDuplicateID = errors.New("duplicate action id")
)

// Action is one entry of the popup menu.
type Action struct {
	ID          string
	Label       string
	Operation   string
	Instruction string
	Enabled     bool
}

// Validate checks that every ID is non-empty and unique within set.
func Validate(set []Action) error {
	seen := make(map[string]struct{}, len(set))
	for i, a := range set {
		if a.ID == "" {
			return fmt.Errorf("action %d: %w", i, ErrEmptyID)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// Registry stores the current ordered set. Registration replaces the whole set.
// Safe for use from any goroutine.
type Registry struct {
	mu  sync.RWMutex
	set []Action
}

// Register validates set and replaces the registry contents with a copy of it.
func (r *Registry) Register(set []Action) error {
	if err := Validate(set); err != nil {
		return err
	}
	r.mu.Lock()
	r.set = slices.Clone(set)
	r.mu.Unlock()
	return nil
}

// Unregister clears the set.
func (r *Registry) Unregister() {
	r.mu.Lock()
	r.set = nil
	r.mu.Unlock()
}

// List returns a copy of the registered set in display order.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.set)
}

// Lookup finds an action by ID.
func (r *Registry) Lookup(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.set {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// Defaults is the set registered when no actions file is configured.
func Defaults() []Action {
	return []Action{
		{ID: "translate", Label: "Translate", Operation: "translate", Instruction: "Translate the text to English.", Enabled: true},
		{ID: "fix_grammar", Label: "Fix Grammar", Operation: "fix_grammar", Instruction: "Fix spelling and grammar, keep the meaning.", Enabled: true},
		{ID: "enhance", Label: "Enhance", Operation: "enhance", Instruction: "Rewrite the text to read more clearly.", Enabled: true},
		{ID: "summarize", Label: "Summarize", Operation: "summarize", Instruction: "Summarize the text in one or two sentences.", Enabled: true},
	}
}

type fileEntry struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Operation   string `json:"operation"`
	Instruction string `json:"instruction"`
	Description string `json:"description"`
	Enabled     *bool  `json:"enabled"`
	SortOrder   int    `json:"sortOrder"`
}

// Parse decodes a JSON array of action configs. Entries are ordered by
// sortOrder, ties keep file order. Missing labels and operations default to the ID,
// a missing instruction to the description, and a missing enabled flag to true.
func Parse(data []byte) ([]Action, error) {
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].SortOrder < entries[j].SortOrder })

	set := make([]Action, 0, len(entries))
	for _, e := range entries {
		a := Action{
			ID:          e.ID,
			Label:       e.Label,
			Operation:   e.Operation,
			Instruction: e.Instruction,
			Enabled:     e.Enabled == nil || *e.Enabled,
		}
		if a.Label == "" {
			a.Label = a.ID
		}
		if a.Operation == "" {
			a.Operation = a.ID
		}
		if a.Instruction == "" {
			a.Instruction = e.Description
		}
		set = append(set, a)
	}
	if err := Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

// Encode is the inverse of Parse for a set already in display order.
func Encode(set []Action) ([]byte, error) {
	entries := make([]fileEntry, len(set))
	for i, a := range set {
		enabled := a.Enabled
		entries[i] = fileEntry{
			ID:          a.ID,
			Label:       a.Label,
			Operation:   a.Operation,
			Instruction: a.Instruction,
			Enabled:     &enabled,
			SortOrder:   i,
		}
	}
	return json.Marshal(entries)
}

// LoadFile reads and parses path.
func LoadFile(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions file: %w", err)
	}
	return Parse(data)
}
