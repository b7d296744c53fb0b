// Package pipeline runs every scanned file through the three analysis stages
// and reconciles what they find into the todo ledger.
//
// An Adapter wraps a vendor client as one stage. It builds the stage prompt,
// scrubs secrets, trims earlier stage output to a token budget, consults the
// response cache and turns any failure into a Result instead of an error.
//
// The Orchestrator drives one file strictly in order: analysis, then
// validation with the analysis text as context, then refactor with both. A
// failed stage only removes its text from later context. Items extracted from
// each successful response are merged into the ledger, which is persisted
// before the report is rendered.
//
// The Runner fans files out over a bounded pool of workers. Cancelling its
// context stops new files from starting; files already in flight finish on a
// detached context so their ledger merge is never lost.
package pipeline
