package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCounter_Heuristic(t *testing.T) {
	c := &Counter{fallback: true}

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := c.Count("Hello world!"); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
	if got := c.Count("a"); got != 1 {
		t.Errorf("short text should count at least 1, got %d", got)
	}
	if got := c.Count("你好"); got != 3 {
		t.Errorf("CJK Count = %d, want 3", got)
	}
}

func TestCounter_HeuristicTruncate(t *testing.T) {
	c := &Counter{fallback: true}
	text := strings.Repeat("abcd", 100)

	out, cut := c.Truncate(text, 10)
	if !cut {
		t.Fatal("expected truncation")
	}
	if len(out) != 40 {
		t.Errorf("len = %d, want 40", len(out))
	}

	out, cut = c.Truncate("short", 10)
	if cut || out != "short" {
		t.Errorf("Truncate(short) = %q, %v", out, cut)
	}

	out, cut = c.Truncate(text, 0)
	if cut || out != text {
		t.Error("limit 0 should disable truncation")
	}
}

func TestCounter_TruncateKeepsValidUTF8(t *testing.T) {
	c := Default()
	text := strings.Repeat("日本語のテキスト。", 200)

	out, cut := c.Truncate(text, 50)
	if !cut {
		t.Fatal("expected truncation")
	}
	if !utf8.ValidString(out) {
		t.Error("truncated text is not valid UTF-8")
	}
	if !strings.HasPrefix(text, out) {
		t.Error("truncated text should be a prefix of the input")
	}
}

func TestCounter_DefaultCounts(t *testing.T) {
	c := Default()
	n := c.Count("func main() { fmt.Println(\"hello\") }")
	if n <= 0 || n > 40 {
		t.Errorf("Count = %d, want a small positive number", n)
	}
}
