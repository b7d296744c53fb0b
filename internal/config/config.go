package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// Stage names, in pipeline order.
const (
	StageAnalysis   = "analysis"
	StageValidation = "validation"
	StageRefactor   = "refactor"
)

// StageNames lists the stages in the order they run.
var StageNames = []string{StageAnalysis, StageValidation, StageRefactor}

// Config represents the triage configuration.
type Config struct {
	Stages         Stages        `json:"stages"`
	Workers        int           `json:"workers"`
	MaxRetries     int           `json:"maxRetries"`
	RetryBaseMs    int           `json:"retryBaseMs"`
	TimeoutSeconds int           `json:"timeoutSeconds"`
	Extensions     []string      `json:"extensions"`
	Exclude        []string      `json:"exclude"`
	MaxFileBytes   int64         `json:"maxFileBytes"`
	OutputDir      string        `json:"outputDir"`
	Format         string        `json:"format"`
	LedgerPath     string        `json:"ledgerPath,omitempty"`
	HistoryPath    string        `json:"historyPath,omitempty"`
	ContextTokens  int           `json:"contextTokens"`
	Cache          CacheConfig   `json:"cache"`
	Privacy        PrivacyConfig `json:"privacy"`
}

// Stages holds the vendor binding of each pipeline stage.
type Stages struct {
	Analysis   StageConfig `json:"analysis"`
	Validation StageConfig `json:"validation"`
	Refactor   StageConfig `json:"refactor"`
}

// StageConfig binds one stage to a vendor and model.
type StageConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty"`
}

// Get returns the config of the named stage.
func (s *Stages) Get(name string) (StageConfig, bool) {
	p := s.ptr(name)
	if p == nil {
		return StageConfig{}, false
	}
	return *p, true
}

func (s *Stages) ptr(name string) *StageConfig {
	switch name {
	case StageAnalysis:
		return &s.Analysis
	case StageValidation:
		return &s.Validation
	case StageRefactor:
		return &s.Refactor
	}
	return nil
}

// DefaultExtensions are scanned when the config names none.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".tsx", ".jsx", ".html", ".css", ".json", ".md",
	".go", ".rs", ".java", ".kt", ".rb", ".php", ".c", ".h", ".cpp", ".hpp",
	".cs", ".swift", ".scala", ".sh", ".sql", ".vue", ".svelte",
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Stages: Stages{
			Analysis:   StageConfig{Provider: "anthropic", Model: "claude-sonnet-4-6", MaxTokens: 4096, Temperature: 0.2},
			Validation: StageConfig{Provider: "openai", Model: "gpt-4.1-mini", MaxTokens: 4096, Temperature: 0.2},
			Refactor:   StageConfig{Provider: "gemini", Model: "gemini-2.5-pro", MaxTokens: 8192, Temperature: 0.2},
		},
		Workers:        4,
		MaxRetries:     3,
		RetryBaseMs:    1000,
		TimeoutSeconds: 120,
		Extensions:     slices.Clone(DefaultExtensions),
		Exclude:        []string{"vendor/**", "**/*.min.js", "**/*.lock", "**/package-lock.json"},
		MaxFileBytes:   200_000,
		OutputDir:      "triage_reports",
		Format:         "markdown",
		ContextTokens:  1500,
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/.env.*", "**/*secrets*", "**/*.pem", "**/*.key"},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for triage.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "triage"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "triage"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "triage"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "triage"), nil
	default:
		return filepath.Join(home, ".config", "triage"), nil
	}
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultHistoryPath is where run history lives unless historyPath is set.
func DefaultHistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// An empty path reads the default config file, which may be absent; an
// explicit path must exist. The overrides map comes from CLI flags, keyed like
// SetField.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	if err := mergeFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile returns the defaults overlaid with the config file only, ignoring
// the environment. It is what `config set` edits. A missing file yields the
// defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if err := mergeFile(&cfg, path, false); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile decodes the JSONC file over dst, so keys absent from the file
// keep their current value.
func mergeFile(dst *Config, path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parsing config file %s: invalid JSONC: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct{ env, key string }{
	{"TRIAGE_WORKERS", "workers"},
	{"TRIAGE_FORMAT", "format"},
	{"TRIAGE_OUTPUT_DIR", "outputDir"},
	{"TRIAGE_LEDGER", "ledgerPath"},
	{"TRIAGE_ANALYSIS_PROVIDER", "stages.analysis.provider"},
	{"TRIAGE_ANALYSIS_MODEL", "stages.analysis.model"},
	{"TRIAGE_VALIDATION_PROVIDER", "stages.validation.provider"},
	{"TRIAGE_VALIDATION_MODEL", "stages.validation.model"},
	{"TRIAGE_REFACTOR_PROVIDER", "stages.refactor.provider"},
	{"TRIAGE_REFACTOR_MODEL", "stages.refactor.model"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k, v := range overrides {
		if v != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := SetField(cfg, k, overrides[k]); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the config to path, or to the default config file when path
// is empty.
func Save(cfg Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Keys lists every key SetField accepts.
func Keys() []string {
	keys := []string{
		"workers", "maxRetries", "retryBaseMs", "timeoutSeconds",
		"extensions", "exclude", "maxFileBytes",
		"outputDir", "format", "ledgerPath", "historyPath", "contextTokens",
		"cache.enabled", "cache.dir", "cache.ttlSeconds",
		"privacy.redactSecrets", "privacy.redactPaths",
	}
	for _, s := range StageNames {
		for _, f := range []string{"provider", "model", "maxTokens", "temperature"} {
			keys = append(keys, "stages."+s+"."+f)
		}
	}
	return keys
}

// SetField sets a single config field by key name. Returns error if key is
// unknown or the value does not parse. List values are comma separated.
func SetField(cfg *Config, key, value string) error {
	if rest, ok := strings.CutPrefix(key, "stages."); ok {
		name, field, _ := strings.Cut(rest, ".")
		sc := cfg.Stages.ptr(name)
		if sc == nil {
			return fmt.Errorf("unknown stage in key %s", key)
		}
		return setStageField(sc, key, field, value)
	}

	switch key {
	case "workers":
		return setInt(&cfg.Workers, key, value)
	case "maxRetries":
		return setInt(&cfg.MaxRetries, key, value)
	case "retryBaseMs":
		return setInt(&cfg.RetryBaseMs, key, value)
	case "timeoutSeconds":
		return setInt(&cfg.TimeoutSeconds, key, value)
	case "contextTokens":
		return setInt(&cfg.ContextTokens, key, value)
	case "maxFileBytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.MaxFileBytes = n
	case "extensions":
		cfg.Extensions = splitList(value)
	case "exclude":
		cfg.Exclude = splitList(value)
	case "outputDir":
		cfg.OutputDir = value
	case "format":
		cfg.Format = value
	case "ledgerPath":
		cfg.LedgerPath = value
	case "historyPath":
		cfg.HistoryPath = value
	case "cache.enabled":
		return setBool(&cfg.Cache.Enabled, key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "privacy.redactSecrets":
		return setBool(&cfg.Privacy.RedactSecrets, key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setStageField(sc *StageConfig, key, field, value string) error {
	switch field {
	case "provider":
		sc.Provider = value
	case "model":
		sc.Model = value
	case "maxTokens":
		return setInt(&sc.MaxTokens, key, value)
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		sc.Temperature = f
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
