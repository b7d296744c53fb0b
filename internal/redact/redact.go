package redact

import (
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret types. Order matters:
// the specific vendor shapes run before the generic assignments.
var secretPatterns = []*regexp.Regexp{
	// Private key blocks, header through footer
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	// Lone private key headers (truncated blocks)
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	// Anthropic API keys
	regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}`),
	// OpenAI API keys, including project keys
	regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_-]{20,}`),
	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	// JWTs (three base64 segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	connStringPattern,
	// AWS secret access keys
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Generic API keys (long hex/base64 strings after common key patterns)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// Generic secrets/tokens/passwords in quoted assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// Generic long hex strings that look like secrets (32+ chars in an assignment)
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// connStringPattern matches credentials embedded in connection strings; the
// scheme and user survive redaction.
var connStringPattern = regexp.MustCompile(`(?i)\b((?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:/\s]+):[^@\s]+@`)

// Secrets replaces detected secrets in text with [REDACTED] and reports how
// many were replaced.
func Secrets(text string) (string, int) {
	result := text
	count := 0
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			count++
			if pat == connStringPattern {
				m := pat.FindStringSubmatch(match)
				return m[1] + ":" + placeholder + "@"
			}
			return placeholder
		})
	}
	return result, count
}

// ShouldRedactPath checks if a slash-separated relative path matches any of
// the doublestar patterns. Patterns starting with **/ also match at the root.
func ShouldRedactPath(p string, patterns []string) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// Result describes what Apply removed.
type Result struct {
	Secrets      int
	PathRedacted bool
}

// Redactor applies the privacy policy to file content.
type Redactor struct {
	secrets bool
	paths   []string
}

// New returns a Redactor. With secrets false only the path policy applies.
func New(secrets bool, paths []string) *Redactor {
	return &Redactor{secrets: secrets, paths: paths}
}

// Apply returns content with the policy applied. rel is the path relative to
// the scanned root.
func (r *Redactor) Apply(rel, content string) (string, Result) {
	if r == nil {
		return content, Result{}
	}
	if ShouldRedactPath(rel, r.paths) {
		return placeholder + " (file content redacted by path policy)\n", Result{PathRedacted: true}
	}
	if !r.secrets {
		return content, Result{}
	}
	out, n := Secrets(content)
	return out, Result{Secrets: n}
}

// Text redacts secrets in free text such as prior-stage output. It ignores
// the path policy.
func (r *Redactor) Text(s string) string {
	if r == nil || !r.secrets {
		return s
	}
	out, _ := Secrets(s)
	return out
}
