package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileName is the name of the history file inside the wallpapers directory.
const FileName = "history"

// Navigator is a browser-style history of candidate ids with a cursor.
// All methods are safe for concurrent use.
type Navigator struct {
	mu     sync.Mutex
	ids    []string
	cursor int
}

// fileFormat is the on-disk representation.
type fileFormat struct {
	IDs    []string `json:"ids"`
	Cursor int      `json:"cursor"`
}

// New returns an empty history.
func New() *Navigator {
	return &Navigator{ids: []string{}}
}

// Push records id as the newest entry. Pushing the id under the cursor is a no-op.
// Pushing from the middle of the history discards everything after the cursor.
func (n *Navigator) Push(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.ids) > 0 && n.ids[n.cursor] == id {
		return
	}
	if len(n.ids) > 0 && n.cursor < len(n.ids)-1 {
		n.ids = n.ids[:n.cursor+1]
	}
	n.ids = append(n.ids, id)
	n.cursor = len(n.ids) - 1
}

// Prev moves the cursor one step back, saturating at the first entry.
func (n *Navigator) Prev() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.ids) == 0 {
		return "", false
	}
	if n.cursor > 0 {
		n.cursor--
	}
	return n.ids[n.cursor], true
}

// Next moves the cursor one step forward, clamped to the last entry.
func (n *Navigator) Next() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.ids) == 0 {
		return "", false
	}
	if n.cursor < len(n.ids)-1 {
		n.cursor++
	}
	return n.ids[n.cursor], true
}

// Current returns the id under the cursor.
func (n *Navigator) Current() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.ids) == 0 {
		return "", false
	}
	return n.ids[n.cursor], true
}

func (n *Navigator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ids)
}

func (n *Navigator) MarshalJSON() ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return json.Marshal(fileFormat{IDs: n.ids, Cursor: n.cursor})
}

func (n *Navigator) UnmarshalJSON(data []byte) error {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.IDs == nil {
		f.IDs = []string{}
	}
	// A cursor outside the list is clamped; the ids are still good.
	switch {
	case len(f.IDs) == 0 || f.Cursor < 0:
		f.Cursor = 0
	case f.Cursor >= len(f.IDs):
		f.Cursor = len(f.IDs) - 1
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = f.IDs
	n.cursor = f.Cursor
	return nil
}

// Load reads the history at path. A missing or unreadable file yields an empty history.
func Load(path string) *Navigator {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("Could not read history file %s, starting with an empty history", path)
		}
		return New()
	}

	nav := New()
	if err := json.Unmarshal(data, nav); err != nil {
		log.WithError(err).Warnf("History file %s is corrupt, starting with an empty history", path)
		return New()
	}
	log.WithField("entries", nav.Len()).Debugf("Loaded history from %s", path)
	return nav
}

// Save writes the history to path through a temporary file in the same directory.
func Save(path string, nav *Navigator) error {
	data, err := json.Marshal(nav)
	if err != nil {
		return fmt.Errorf("error marshalling history: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("error creating history directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error replacing history file %s: %w", path, err)
	}
	return nil
}
