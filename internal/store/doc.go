// Package store provides SQLite-backed durable storage for synclog.
//
// The store implements:
//   - Event log: append-only per (owner, store), optimistic head check
//   - Heads: one row per (owner, store) with head and commit sequences
//   - Store ownership: store_id → owner, driven by internal/ownership
//   - Sharing reads: scope-state heads and active resource grants
//
// # Critical Patterns
//
// Serializable writes
//   - Write transactions begin IMMEDIATE (_txlock=immediate), taking the
//     database write lock up front
//   - The head check and the insert happen inside the same transaction, so
//     two pushers with the same expected head cannot both commit
//   - This holds across processes sharing one database file
//
// Deterministic query results
//   - Pulls ORDER BY global_sequence ASC, commit_sequence ASC,
//     event_id COLLATE BINARY ASC, version ASC
//
// Logical sequence only
//   - Ordering never uses occurred_at; it is stored for the client only
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
