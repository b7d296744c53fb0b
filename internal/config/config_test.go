package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the default config dir at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, e := range envKeys {
		t.Setenv(e.env, "")
	}
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Stages.Analysis.Provider != "anthropic" {
		t.Errorf("analysis provider = %q, want %q", cfg.Stages.Analysis.Provider, "anthropic")
	}
	if cfg.Stages.Validation.Provider != "openai" {
		t.Errorf("validation provider = %q, want %q", cfg.Stages.Validation.Provider, "openai")
	}
	if cfg.Stages.Refactor.Provider != "gemini" {
		t.Errorf("refactor provider = %q, want %q", cfg.Stages.Refactor.Provider, "gemini")
	}
	if cfg.Format != "markdown" {
		t.Errorf("Default format = %q, want %q", cfg.Format, "markdown")
	}
	if cfg.Workers != 4 {
		t.Errorf("Default workers = %d, want 4", cfg.Workers)
	}
	if cfg.ContextTokens != 1500 {
		t.Errorf("Default contextTokens = %d, want 1500", cfg.ContextTokens)
	}
	if !cfg.Privacy.RedactSecrets {
		t.Error("Default redactSecrets should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestDefault_ExtensionsNotShared(t *testing.T) {
	a := Default()
	a.Extensions[0] = ".changed"
	if Default().Extensions[0] == ".changed" {
		t.Error("Default must not share the extensions slice")
	}
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), nil)
	require.Error(t, err)
}

func TestLoad_JSONCFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "triage", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{
  // local models for the expensive stage
  "stages": {
    "refactor": {"provider": "ollama", "model": "qwen2.5-coder"},
  },
  "workers": 8,
  "cache": {"enabled": false},
}`), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Stages.Refactor.Provider)
	assert.Equal(t, "qwen2.5-coder", cfg.Stages.Refactor.Model)
	assert.Equal(t, 8192, cfg.Stages.Refactor.MaxTokens, "unset nested keys keep defaults")
	assert.Equal(t, "anthropic", cfg.Stages.Analysis.Provider)
	assert.Equal(t, 8, cfg.Workers)
	assert.False(t, cfg.Cache.Enabled, "explicit false must override the default")
	assert.Equal(t, 86400, cfg.Cache.TTLSeconds)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"wrokers": 2}`), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestLoad_InvalidJSONC(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": `), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSONC")
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": 2, "format": "html"}`), 0o644))

	t.Setenv("TRIAGE_WORKERS", "6")
	t.Setenv("TRIAGE_ANALYSIS_MODEL", "claude-opus-4-1")

	cfg, err := Load(path, map[string]string{"workers": "10", "outputDir": ""})
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Workers, "flag beats env")
	assert.Equal(t, "html", cfg.Format, "file beats default")
	assert.Equal(t, "claude-opus-4-1", cfg.Stages.Analysis.Model, "env beats default")
	assert.Equal(t, "triage_reports", cfg.OutputDir, "empty overrides are ignored")
}

func TestLoad_BadEnv(t *testing.T) {
	isolate(t)
	t.Setenv("TRIAGE_WORKERS", "many")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIAGE_WORKERS")
}

func TestSaveAndLoad(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := Default()
	require.NoError(t, SetField(&cfg, "stages.validation.model", "gpt-4.1"))
	require.NoError(t, Save(cfg, path))

	got, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": 7}`), 0o644))
	t.Setenv("TRIAGE_WORKERS", "9")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)

	cfg, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSetField(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(t *testing.T, c Config)
	}{
		{"workers", "3", func(t *testing.T, c Config) { assert.Equal(t, 3, c.Workers) }},
		{"maxFileBytes", "1024", func(t *testing.T, c Config) { assert.Equal(t, int64(1024), c.MaxFileBytes) }},
		{"extensions", ".go, .py,", func(t *testing.T, c Config) { assert.Equal(t, []string{".go", ".py"}, c.Extensions) }},
		{"cache.enabled", "false", func(t *testing.T, c Config) { assert.False(t, c.Cache.Enabled) }},
		{"privacy.redactPaths", "**/.env", func(t *testing.T, c Config) { assert.Equal(t, []string{"**/.env"}, c.Privacy.RedactPaths) }},
		{"stages.refactor.provider", "ollama", func(t *testing.T, c Config) { assert.Equal(t, "ollama", c.Stages.Refactor.Provider) }},
		{"stages.analysis.temperature", "0.7", func(t *testing.T, c Config) { assert.InDelta(t, 0.7, c.Stages.Analysis.Temperature, 1e-9) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, SetField(&cfg, tt.key, tt.value))
			tt.check(t, cfg)
		})
	}
}

func TestSetField_Errors(t *testing.T) {
	tests := []struct{ key, value string }{
		{"nope", "x"},
		{"workers", "many"},
		{"cache.enabled", "maybe"},
		{"stages.review.model", "x"},
		{"stages.analysis.color", "x"},
		{"stages.analysis.temperature", "warm"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, SetField(&cfg, tt.key, tt.value))
		})
	}
}

func TestKeys_AllSettable(t *testing.T) {
	values := map[string]string{
		"cache.enabled":               "true",
		"privacy.redactSecrets":       "true",
		"stages.analysis.temperature": "0.1",
	}
	for _, k := range Keys() {
		cfg := Default()
		v, ok := values[k]
		if !ok {
			v = "1"
		}
		assert.NoError(t, SetField(&cfg, k, v), k)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.Format = "pdf"
	cfg.Stages.Validation.Provider = "mystery"
	cfg.Stages.Refactor.Model = ""
	cfg.Extensions = []string{"go"}
	cfg.Exclude = []string{"[unclosed"}

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{
		"stages.validation.provider",
		"stages.refactor.model",
		"workers",
		"format",
		"extensions[0]",
		"exclude[0]",
	}, fields)
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "triage"), dir)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "triage", "config.json"), path)
}
