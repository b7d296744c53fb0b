// Package ledger keeps the persistent, deduplicated list of todo items found
// across analysis runs.
//
// The ledger is an explicit handle rather than a global: callers open one per
// project file and pass it to whatever needs it. Merge is idempotent and
// never reverts a completed item. Persist writes through a temporary file and
// a rename, so a crash mid-write leaves the previous file intact. A file that
// exists but cannot be decoded is reported as ErrCorrupt and never replaced.
package ledger
