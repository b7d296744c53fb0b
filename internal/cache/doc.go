// Package cache provides a file-based cache for stage responses.
//
// Entries are keyed by a SHA-256 hash of the stage, vendor, model and the
// exact prompts sent. Each entry stores the raw response text with a creation
// time; entries older than the TTL are treated as misses and removed. Writes
// are atomic so concurrent workers never observe a torn entry.
//
// The default cache directory is $XDG_CACHE_HOME/triage (or the OS-appropriate
// equivalent). Prompts are redacted before they are hashed or stored.
package cache
