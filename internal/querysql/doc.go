// Package querysql compiles query.ObservationQuery and query.VersionQuery to
// SQL understood by both SQLite and Postgres.
//
// Timestamps are stored as Unix nanoseconds and ids as 16 raw bytes, so the
// row-value keyset comparison orders exactly like the decoded cursor.
package querysql
