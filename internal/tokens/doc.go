// Package tokens counts and trims text by model tokens so prior-stage output
// fits the context budget of the next stage.
//
// Counting uses tiktoken's cl100k_base encoding. When the BPE tables cannot be
// loaded (offline machines) a character heuristic takes over.
package tokens
