package todo

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	base := NewID("Add null check", "foo.py", "analysis")

	if !strings.HasPrefix(base, "todo_") || len(base) != len("todo_")+16 {
		t.Fatalf("NewID = %q, want todo_ prefix and 16 hex chars", base)
	}
	if got := NewID("  add  **null** check. ", "foo.py", "analysis"); got != base {
		t.Errorf("normalized description should give same id: %q != %q", got, base)
	}
	if got := NewID("Add null check", "bar.py", "analysis"); got == base {
		t.Error("different file should change id")
	}
	if got := NewID("Add null check", "foo.py", "validation"); got == base {
		t.Error("different source should change id")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Fix `parse()`!", "fix parse()"},
		{"  Many   spaces\tand\ttabs ", "many spaces and tabs"},
		{"__Bold__ text...", "bold text"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
		ok   bool
	}{
		{"High", PriorityHigh, true},
		{"CRITICAL", PriorityHigh, true},
		{"Critique", PriorityHigh, true},
		{"élevée", PriorityHigh, true},
		{"medium", PriorityMedium, true},
		{"Moyenne", PriorityMedium, true},
		{"low.", PriorityLow, true},
		{"Faible", PriorityLow, true},
		{"someday", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePriority(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePriority(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseEffort(t *testing.T) {
	tests := []struct {
		in   string
		want Effort
		ok   bool
	}{
		{"Large", EffortLarge, true},
		{"high", EffortLarge, true},
		{"Élevé", EffortLarge, true},
		{"moyen", EffortMedium, true},
		{"small", EffortSmall, true},
		{"low", EffortSmall, true},
		{"faible", EffortSmall, true},
		{"?", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseEffort(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseEffort(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestItemValidate(t *testing.T) {
	good := Item{ID: "todo_1", Description: "x", Priority: PriorityLow, Effort: EffortSmall}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := []Item{
		{Description: "x", Priority: PriorityLow, Effort: EffortSmall},
		{ID: "todo_1", Description: " ", Priority: PriorityLow, Effort: EffortSmall},
		{ID: "todo_1", Description: "x", Priority: "urgent", Effort: EffortSmall},
		{ID: "todo_1", Description: "x", Priority: PriorityLow},
	}
	for i, it := range bad {
		if err := it.Validate(); err == nil {
			t.Errorf("case %d: Validate() = nil, want error", i)
		}
	}
}
