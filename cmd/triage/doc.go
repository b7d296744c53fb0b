// Triage runs every source file of a project through three LLM stages and
// keeps the TODO items they raise in a persistent, deduplicated ledger.
//
// Each file is analyzed, the analysis is validated by a second model, and a
// third model proposes refactorings. Every stage writes a Markdown report;
// a failed stage is recorded and the remaining stages still run.
//
// Usage:
//
//	triage analyze .                    # analyze the current project
//	triage analyze --since main .       # only files changed since main
//	triage todo list --priority high    # open high-priority items
//	triage todo done todo_3f2a          # mark an item completed
//	triage todo export --format sarif   # export for code scanning
//	triage history                      # past runs
package main
