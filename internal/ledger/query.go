package ledger

import (
	"sort"

	"github.com/dshills/triage/internal/todo"
)

// Status selects items by completion state.
type Status int

const (
	StatusOpen Status = iota
	StatusCompleted
	StatusAll
)

// Filter narrows Items. Empty fields match everything.
type Filter struct {
	File     string
	Source   string
	Priority todo.Priority
	Effort   todo.Effort
	Status   Status
}

func (f Filter) match(it todo.Item) bool {
	if f.File != "" && it.File != f.File {
		return false
	}
	if f.Source != "" && it.Source != f.Source {
		return false
	}
	if f.Priority != "" && it.Priority != f.Priority {
		return false
	}
	if f.Effort != "" && it.Effort != f.Effort {
		return false
	}
	switch f.Status {
	case StatusOpen:
		return !it.Completed
	case StatusCompleted:
		return it.Completed
	}
	return true
}

// Items returns matching items ordered by priority (highest first), then
// effort (smallest first), then file and description.
func (l *Ledger) Items(f Filter) []todo.Item {
	l.mu.Lock()
	out := make([]todo.Item, 0, len(l.items))
	for _, it := range l.items {
		if f.match(it) {
			out = append(out, it)
		}
	}
	l.mu.Unlock()

	SortItems(out)
	return out
}

// Top returns up to n open items in priority order.
func (l *Ledger) Top(n int) []todo.Item {
	items := l.Items(Filter{Status: StatusOpen})
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

// SortItems orders items the way Items does.
func SortItems(items []todo.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if a.Effort.Rank() != b.Effort.Rank() {
			return a.Effort.Rank() < b.Effort.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.ID < b.ID
	})
}

// Stats summarizes the ledger.
type Stats struct {
	Total      int            `json:"total" yaml:"total"`
	Open       int            `json:"open" yaml:"open"`
	Completed  int            `json:"completed" yaml:"completed"`
	ByPriority map[string]int `json:"byPriority" yaml:"byPriority"`
	ByEffort   map[string]int `json:"byEffort" yaml:"byEffort"`
	ByFile     map[string]int `json:"byFile" yaml:"byFile"`
	BySource   map[string]int `json:"bySource" yaml:"bySource"`
}

// Stats counts items; the breakdowns cover open items only.
func (l *Ledger) Stats() Stats {
	s := Stats{
		ByPriority: make(map[string]int),
		ByEffort:   make(map[string]int),
		ByFile:     make(map[string]int),
		BySource:   make(map[string]int),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		s.Total++
		if it.Completed {
			s.Completed++
			continue
		}
		s.Open++
		s.ByPriority[string(it.Priority)]++
		s.ByEffort[string(it.Effort)]++
		s.ByFile[it.File]++
		s.BySource[it.Source]++
	}
	return s
}
