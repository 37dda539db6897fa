// Package store provides SQLite-backed archival of fusion sessions.
//
// A session groups one engine run:
//   - Inputs: every accepted input event, with its payload as JSON
//   - Fused outputs: every emitted output, with its data as canonical JSON
//   - Log entries: an export of the fusion logger
//
// # Ordering
//
// Inputs are ordered by seq (the engine's logical clock), never by
// timestamp. Outputs and log entries keep the order they were emitted in.
// Ties break on id COLLATE BINARY so reads are deterministic.
//
// Confidence is stored as integer basis points.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
