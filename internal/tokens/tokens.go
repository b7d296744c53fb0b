package tokens

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for every vendor; the counts only need to be close.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens with tiktoken or a heuristic fallback.
type Counter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
	fallback bool
	mu       sync.Mutex
}

var (
	defaultCounter     *Counter
	defaultCounterOnce sync.Once
)

// Default returns the shared counter, initialising it on first use.
func Default() *Counter {
	defaultCounterOnce.Do(func() {
		defaultCounter = New(DefaultEncoding)
	})
	return defaultCounter
}

// New creates a counter for the named encoding, falling back to the heuristic
// if the encoding cannot be loaded.
func New(encoding string) *Counter {
	c := &Counter{encoding: encoding}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		c.fallback = true
		return c
	}
	c.encoder = enc
	return c
}

// Precise reports whether tiktoken is in use.
func (c *Counter) Precise() bool { return !c.fallback }

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.fallback {
		return heuristicCount(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoder.Encode(text, nil, nil))
}

// Truncate returns the longest prefix of text that fits in limit tokens, and
// whether anything was cut. A limit <= 0 means no limit.
func (c *Counter) Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || text == "" {
		return text, false
	}
	if c.fallback {
		return heuristicTruncate(text, limit)
	}

	c.mu.Lock()
	toks := c.encoder.Encode(text, nil, nil)
	if len(toks) <= limit {
		c.mu.Unlock()
		return text, false
	}
	out := c.encoder.Decode(toks[:limit])
	c.mu.Unlock()

	// A token boundary can split a multi-byte rune.
	return strings.ToValidUTF8(out, ""), true
}

// heuristicCount estimates ~4 ASCII chars per token and 1.5 tokens per CJK rune.
func heuristicCount(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)*1.5 + float64(other)*0.25)
	if n < 1 {
		n = 1
	}
	return n
}

func heuristicTruncate(text string, limit int) (string, bool) {
	budget := float64(limit)
	used := 0.0
	for i, r := range text {
		cost := 0.25
		if isCJK(r) {
			cost = 1.5
		}
		if used+cost > budget {
			return text[:i], true
		}
		used += cost
	}
	return text, false
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Hangul
}
