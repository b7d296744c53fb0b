package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/dshills/triage/internal/providers"
)

// Formats lists the accepted report formats.
var Formats = []string{"markdown", "html", "json"}

// Validate checks the merged configuration and reports every bad field at
// once as criterio.FieldErrors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateStages(),
		criterio.Run("workers", c.Workers, positive),
		criterio.Run("maxRetries", c.MaxRetries, nonNegative),
		criterio.Run("retryBaseMs", c.RetryBaseMs, positive),
		criterio.Run("timeoutSeconds", c.TimeoutSeconds, positive),
		criterio.Run("contextTokens", c.ContextTokens, nonNegative),
		criterio.Run("cache.ttlSeconds", c.Cache.TTLSeconds, nonNegative),
		criterio.Run("format", c.Format, validFormat),
		criterio.Run("outputDir", c.OutputDir, notBlank),
		c.validateFiles(),
		validatePatterns("exclude", c.Exclude),
		validatePatterns("privacy.redactPaths", c.Privacy.RedactPaths),
	)
}

func (c *Config) validateStages() error {
	var errs criterio.FieldErrorsBuilder
	for _, name := range StageNames {
		sc, _ := c.Stages.Get(name)
		prefix := "stages." + name
		if !providers.Valid(sc.Provider) {
			errs = errs.Append(prefix+".provider", fmt.Errorf("unknown provider %q (known: %s)", sc.Provider, strings.Join(providers.Known(), ", ")))
		}
		if strings.TrimSpace(sc.Model) == "" {
			errs = errs.Append(prefix+".model", fmt.Errorf("is required"))
		}
		if sc.MaxTokens < 0 {
			errs = errs.Append(prefix+".maxTokens", fmt.Errorf("must not be negative"))
		}
		if sc.Temperature < 0 || sc.Temperature > 2 {
			errs = errs.Append(prefix+".temperature", fmt.Errorf("must be between 0 and 2"))
		}
	}
	return errs.ToError()
}

func (c *Config) validateFiles() error {
	var errs criterio.FieldErrorsBuilder
	if c.MaxFileBytes <= 0 {
		errs = errs.Append("maxFileBytes", fmt.Errorf("must be positive"))
	}
	if len(c.Extensions) == 0 {
		errs = errs.Append("extensions", fmt.Errorf("at least one extension is required"))
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = errs.Append(fmt.Sprintf("extensions[%d]", i), fmt.Errorf("%q must look like .ext", ext))
		}
	}
	return errs.ToError()
}

func validatePatterns(field string, patterns []string) error {
	var errs criterio.FieldErrorsBuilder
	for i, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			errs = errs.Append(fmt.Sprintf("%s[%d]", field, i), fmt.Errorf("invalid glob %q", p))
		}
	}
	return errs.ToError()
}

func positive(n int) error {
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func validFormat(s string) error {
	for _, f := range Formats {
		if s == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (want one of %s)", s, strings.Join(Formats, ", "))
}
