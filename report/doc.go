// Package report persists run reports produced at session teardown.
//
// Three Store implementations are provided:
//   - MemoryStore: process local, for tests and ephemeral runs
//   - FileStore: one JSON document per run in a directory
//   - SQLiteStore: a table of JSON documents in SQLite (modernc.org/sqlite)
//
// Reports are stored as their JSON encoding; values read back therefore
// hold JSON decoded types (map[string]any, float64, ...).
package report
