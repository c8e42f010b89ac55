// Package storage is the read side of the task history plus the notifier's dedup state.
//
// One database/sql implementation serves both dialects:
//   - "sqlite": embedded file database (modernc.org/sqlite, no cgo)
//   - "postgres": server database (github.com/lib/pq)
//
// Timestamps are stored as unix milliseconds; due dates as 'YYYY-MM-DD' text.
package storage
