// Package history records finished analysis runs in a local SQLite database
// so past runs can be listed and compared.
//
// One row is kept per run and one per stage invocation. The database is
// opened in WAL mode with the pure-Go modernc.org/sqlite driver.
package history
