// Package redact removes secrets from file content before it is sent to any
// LLM vendor or written to the response cache.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private key blocks, AWS access key IDs and secret access keys, bearer
// tokens, database connection strings, and vendor tokens (Anthropic, OpenAI,
// Google, GitHub, Slack).
//
// Path-based redaction is also supported: files whose paths match configured
// doublestar globs have their entire content replaced rather than being
// scanned line by line.
package redact
