// Package payload provides the opaque value type carried by observations and
// its content addressing.
//
// This package imports nothing internal. Payloads are never interpreted
// beyond what hashing and entity-id extraction require.
//
// Key constraints:
//   - Hash equality is the only equality used for deduplication
//   - Canonical form sorts object keys by ordinal byte order
//   - Int and Float are distinct; 1 and 1.0 are different payloads
package payload
