package payload

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// HashSize is the width of a content id in bytes.
const HashSize = 16

// Hash is the 128-bit content id of a payload: the first 16 bytes of the
// SHA-256 digest of its canonical form.
type Hash [HashSize]byte

// HashOf computes the content id of v.
// Values that differ only in object key order hash identically.
func HashOf(v Value) Hash {
	return HashBytes(Canonical(v))
}

// HashBytes computes the content id of already-canonical bytes.
func HashBytes(canonical []byte) Hash {
	sum := sha256.Sum256(canonical)
	var h Hash
	copy(h[:], sum[:HashSize])
	return h
}

// ParseHash decodes the 32-character hex form produced by String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("parse hash: want %d hex characters, got %d", HashSize*2, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	return h, nil
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Value stores the hash as raw bytes.
func (h Hash) Value() (driver.Value, error) {
	return h[:], nil
}

// Scan implements sql.Scanner for BLOB/BYTEA columns.
func (h *Hash) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan hash: unsupported type %T", src)
	}
	if len(b) != HashSize {
		return fmt.Errorf("scan hash: want %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return nil
}
