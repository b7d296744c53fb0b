package providers

import (
	"strings"
	"testing"
	"time"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("unknown", "model", Options{})
	if err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestNew_MissingKey(t *testing.T) {
	tests := []struct {
		provider string
		envVars  []string
	}{
		{"anthropic", []string{"ANTHROPIC_API_KEY"}},
		{"claude", []string{"ANTHROPIC_API_KEY"}},
		{"openai", []string{"OPENAI_API_KEY"}},
		{"gemini", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}},
		{"google", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			for _, v := range tt.envVars {
				t.Setenv(v, "")
			}
			_, err := New(tt.provider, "model", Options{})
			if err == nil {
				t.Fatal("expected missing key error")
			}
			if strings.Contains(err.Error(), "unknown provider") {
				t.Errorf("%q should be a known provider: %v", tt.provider, err)
			}
		})
	}
}

func TestNew_WithKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("GEMINI_API_KEY", "g")

	for _, name := range Known() {
		c, err := New(name, "m", Options{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("Name() = %q, want %q", c.Name(), name)
		}
		if c.Model() != "m" {
			t.Errorf("Model() = %q, want %q", c.Model(), "m")
		}
	}
}

func TestOptions_Defaults(t *testing.T) {
	var o Options
	if o.retry() != DefaultRetryPolicy {
		t.Errorf("zero Options should use DefaultRetryPolicy")
	}
	if c := o.httpClient(30 * time.Second); c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.Timeout)
	}

	o = Options{Timeout: time.Second, Retry: RetryPolicy{MaxRetries: 1}}
	if o.httpClient(30*time.Second).Timeout != time.Second {
		t.Error("explicit Timeout should win")
	}
	if o.retry().MaxRetries != 1 {
		t.Error("explicit Retry should win")
	}
}
