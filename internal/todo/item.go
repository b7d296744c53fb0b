package todo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Priority ranks how urgent an item is.
type Priority string

// Effort estimates how much work an item needs.
type Effort string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	EffortSmall  Effort = "small"
	EffortMedium Effort = "medium"
	EffortLarge  Effort = "large"
)

// Rank returns a sortable weight for p, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// Rank returns a sortable weight for e, higher is more work.
func (e Effort) Rank() int {
	switch e {
	case EffortLarge:
		return 3
	case EffortMedium:
		return 2
	case EffortSmall:
		return 1
	default:
		return 0
	}
}

// Valid reports whether e is one of the known efforts.
func (e Effort) Valid() bool { return e.Rank() > 0 }

// ParsePriority maps a user or model supplied word onto a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch foldWord(s) {
	case "critical", "critique", "urgent", "blocker", "high", "haute", "haut", "elevee", "elevée", "élevée", "eleve", "élevé":
		return PriorityHigh, true
	case "medium", "moderate", "normal", "moyenne", "moyen":
		return PriorityMedium, true
	case "low", "minor", "basse", "bas", "faible":
		return PriorityLow, true
	}
	return "", false
}

// ParseEffort maps a user or model supplied word onto an Effort.
func ParseEffort(s string) (Effort, bool) {
	switch foldWord(s) {
	case "large", "high", "big", "major", "hard", "elevee", "elevée", "élevée", "eleve", "élevé", "important", "importante", "grand":
		return EffortLarge, true
	case "medium", "moderate", "moyen", "moyenne":
		return EffortMedium, true
	case "small", "low", "minor", "trivial", "easy", "faible", "petit", "petite":
		return EffortSmall, true
	}
	return "", false
}

func foldWord(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), " .,;:!*_`'\"()[]"))
}

// Item is a single action item derived from a stage response.
type Item struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description" yaml:"description"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Effort      Effort   `json:"effort" yaml:"effort"`
	File        string   `json:"file" yaml:"file"`
	Source      string   `json:"source" yaml:"source"`
	Timestamp   int64    `json:"timestamp" yaml:"timestamp"`
	Completed   bool     `json:"completed" yaml:"completed"`
	CompletedAt int64    `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Validate checks the fields the ledger relies on.
func (it Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item has no id")
	}
	if strings.TrimSpace(it.Description) == "" {
		return fmt.Errorf("item %s has an empty description", it.ID)
	}
	if !it.Priority.Valid() {
		return fmt.Errorf("item %s has unknown priority %q", it.ID, it.Priority)
	}
	if !it.Effort.Valid() {
		return fmt.Errorf("item %s has unknown effort %q", it.ID, it.Effort)
	}
	return nil
}

const idPrefix = "todo_"

// NewID derives the stable identity of an item. Two extractions of the same
// description for the same file and source always produce the same id.
func NewID(description, file, source string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(description)))
	h.Write([]byte{0})
	h.Write([]byte(file))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return idPrefix + hex.EncodeToString(h.Sum(nil))[:16]
}

// Normalize folds a description into the form used for identity: lower case,
// emphasis and code markers removed, whitespace collapsed, trailing
// punctuation dropped.
func Normalize(description string) string {
	s := strings.ToLower(description)
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, " .,;:!?")
}
