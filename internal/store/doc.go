// Package store provides SQLite-backed durable storage for executor dispatch
// logs.
//
// The store is an append-only log with two tables:
//   - runs: one row per executor session
//   - dispatches: one row per callback invocation, keyed by the
//     content-addressed id from ir.DispatchID
//
// All ordering uses the logical seq and end_seq columns taken from the
// executor clock, never wall-clock timestamps, so the same run reads back in
// the same order every time. Queries order by seq ASC, id ASC COLLATE BINARY.
//
// Writes are idempotent: writing a run or dispatch whose id already exists
// is a no-op. A *Store satisfies executor.Recorder and can be handed to an
// executor with executor.WithRecorder.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
