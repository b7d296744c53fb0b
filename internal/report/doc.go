// Package report writes the artifacts of an analysis run.
//
// Every stage of every file gets its own Markdown document: analysis output
// under analysis_reports/, validation and refactoring output under
// refactoring_suggestions/. A stage that failed gets an error document in the
// same place, so a missing report always means the file was never analysed.
// The html format adds a styled .html sibling rendered with goldmark; the json
// format adds a machine-readable FileReport per file under file_reports/.
//
// RenderProject writes the project report, which links every stage document
// and lists the most urgent open todos, plus a todos.json export of the ledger.
//
// ExportTodos and Terminal serve the CLI: the former writes ledger items as
// JSON, YAML or Markdown, the latter renders Markdown for a terminal with
// glamour.
package report
