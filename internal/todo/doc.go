// Package todo defines the action items triage tracks and the extractor that
// derives them from free-text stage responses.
//
// Item ids are a hash of the normalized description, the file and the stage
// that produced the item, so re-analysing an unchanged file yields the same
// ids and the ledger can merge idempotently.
package todo
