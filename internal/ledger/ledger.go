package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/triage/internal/todo"
	"github.com/natefinch/atomic"
)

// DefaultFile is the ledger file name used when none is configured.
const DefaultFile = "project_todo.json"

const fileVersion = 1

var (
	// ErrCorrupt means the ledger file exists but cannot be trusted. The
	// file is left untouched.
	ErrCorrupt = errors.New("ledger file is corrupt")

	// ErrWriteFailure means a persist attempt failed. In-memory state is kept
	// and retried by the next Persist or Flush.
	ErrWriteFailure = errors.New("ledger write failed")
)

type document struct {
	Version int                  `json:"version"`
	Items   map[string]todo.Item `json:"items"`
}

// Ledger is the durable, deduplicated set of todo items for a project. All
// methods are safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	path  string
	items map[string]todo.Item
	dirty bool
	now   func() time.Time
}

// New returns an empty ledger bound to path. Nothing is read until Load.
func New(path string) *Ledger {
	return &Ledger{
		path:  path,
		items: make(map[string]todo.Item),
		now:   time.Now,
	}
}

// Open creates a ledger for path and loads it.
func Open(path string) (*Ledger, error) {
	l := New(path)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Load replaces the in-memory state with the file contents. A missing or
// blank file yields an empty ledger.
func (l *Ledger) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.reset(nil)
			return nil
		}
		return fmt.Errorf("reading ledger %s: %w", l.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		l.reset(nil)
		return nil
	}

	items, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, l.path, err)
	}
	l.reset(items)
	return nil
}

func (l *Ledger) reset(items map[string]todo.Item) {
	if items == nil {
		items = make(map[string]todo.Item)
	}
	l.mu.Lock()
	l.items = items
	l.dirty = false
	l.mu.Unlock()
}

func decode(data []byte) (map[string]todo.Item, error) {
	trimmed := bytes.TrimSpace(data)

	// A bare list is the layout older tools wrote.
	if trimmed[0] == '[' {
		var list []todo.Item
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		items := make(map[string]todo.Item, len(list))
		for _, it := range list {
			if err := it.Validate(); err != nil {
				return nil, err
			}
			if _, dup := items[it.ID]; dup {
				return nil, fmt.Errorf("duplicate id %s", it.ID)
			}
			items[it.ID] = it
		}
		return items, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", doc.Version)
	}
	if doc.Items == nil {
		doc.Items = make(map[string]todo.Item)
	}
	for key, it := range doc.Items {
		if key != it.ID {
			return nil, fmt.Errorf("key %s does not match item id %q", key, it.ID)
		}
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Items, nil
}

// Merge folds items into the ledger and returns how many were new.
//
// An unseen id is inserted as is. A known id keeps its description, file,
// source and discovery timestamp; priority and effort are refreshed and the
// completed flag can only move from false to true.
func (l *Ledger) Merge(items []todo.Item) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, it := range items {
		if it.ID == "" {
			it.ID = todo.NewID(it.Description, it.File, it.Source)
		}
		if it.Priority == "" {
			it.Priority = todo.PriorityMedium
		}
		if it.Effort == "" {
			it.Effort = todo.EffortMedium
		}
		if it.Validate() != nil {
			continue
		}

		old, ok := l.items[it.ID]
		if !ok {
			if it.Timestamp == 0 {
				it.Timestamp = l.now().Unix()
			}
			l.items[it.ID] = it
			l.dirty = true
			added++
			continue
		}

		merged := old
		merged.Priority = it.Priority
		merged.Effort = it.Effort
		if it.Completed && !old.Completed {
			merged.Completed = true
			merged.CompletedAt = it.CompletedAt
			if merged.CompletedAt == 0 {
				merged.CompletedAt = l.now().Unix()
			}
		}
		if merged != old {
			l.items[it.ID] = merged
			l.dirty = true
		}
	}
	return added
}

// MarkCompleted flags an item as done. It reports false for unknown ids.
func (l *Ledger) MarkCompleted(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	it, ok := l.items[id]
	if !ok {
		return false
	}
	if !it.Completed {
		it.Completed = true
		it.CompletedAt = l.now().Unix()
		l.items[id] = it
		l.dirty = true
	}
	return true
}

// Reopen clears the completed flag. Only an explicit user action calls this;
// Merge never does.
func (l *Ledger) Reopen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	it, ok := l.items[id]
	if !ok {
		return false
	}
	if it.Completed {
		it.Completed = false
		it.CompletedAt = 0
		l.items[id] = it
		l.dirty = true
	}
	return true
}

// Persist writes the ledger to disk with a temp-file-and-rename so readers
// never observe a partial file.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked()
}

// Flush persists only when there are unsaved changes.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}
	return l.persistLocked()
}

func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(document{Version: fileVersion, Items: l.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrWriteFailure, err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailure, l.path, err)
		}
	}
	if err := atomic.WriteFile(l.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailure, l.path, err)
	}
	// atomic.WriteFile leaves new files with the temp file's 0600 mode.
	_ = os.Chmod(l.path, 0o644)

	l.dirty = false
	return nil
}

// Dirty reports whether there are changes not yet persisted.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Len returns the number of items, completed ones included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Get looks up a single item.
func (l *Ledger) Get(id string) (todo.Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[id]
	return it, ok
}

// Snapshot returns a copy of every item keyed by id.
func (l *Ledger) Snapshot() map[string]todo.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]todo.Item, len(l.items))
	for k, v := range l.items {
		out[k] = v
	}
	return out
}
