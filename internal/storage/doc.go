// Package storage persists the channel/job table.
//
// Two drivers are available:
//   - "file":   one JSON document, replaced atomically (tmp + fsync + rename)
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
//
// Backends always read and write the whole table; the jobstore package owns
// the in-memory copy and decides when to save.
package storage
