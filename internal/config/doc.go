// Package config loads and merges triage configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (TRIAGE_WORKERS, TRIAGE_FORMAT, TRIAGE_ANALYSIS_MODEL, etc.)
//  3. Config file ($XDG_CONFIG_HOME/triage/config.json, JSON with comments)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Config.Validate] to check it,
// [Save] to write one, and [SetField] to update a single dotted key.
package config
