// Package store is the durable home of chronicle data, over SQLite or
// Postgres through sqlx.
//
// Four tables:
//   - objects: content-addressed payloads keyed by payload.Hash, written once
//   - observations: the append-only log of (type, source, timestamp, entity, hash)
//   - entities: every (type, entity id) ever observed
//   - versions: run-length history derived from the log, replaceable any time
//
// # Idempotency
//
// Objects and observations are written with "insert if absent" semantics.
// Replaying a batch, or two producers racing on the same payload, never
// errors and never duplicates a row. The observation log's uniqueness is
// (type, source_id, timestamp, entity_id, hash); the generated observation id
// only breaks ties in sort order.
//
// # Versions
//
// Versions always equal versioning.Derive over the key's full log. Append
// keeps them current in its own transaction (extend the open version when the
// new rows are strictly later, rebuild the key otherwise). RebuildEntity and
// RebuildAll recompute them from scratch.
//
// # Ordering
//
//   - observations: ORDER BY timestamp, observation_id
//   - version ranges: ORDER BY valid_from, entity_id, version
//   - snapshots: ORDER BY entity_id
//
// Timestamps are stored as Unix nanoseconds and ids as 16 raw bytes, so
// ordering on both engines is numeric and bytewise.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
