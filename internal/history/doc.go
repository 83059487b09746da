// Package history persists one record per batch run, plus the per-site
// results of that run, in a SQLite database under the log directory.
//
// Store wraps database/sql over modernc.org/sqlite in WAL mode and retries
// writes that hit SQLITE_BUSY with a short exponential backoff.
package history
