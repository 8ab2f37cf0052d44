// Package cursor encodes keyset pagination positions as opaque tokens.
//
// Layout (24 bytes, then URL-safe base64):
//
//	[0:16]  tie-break id, raw bytes
//	[16:24] signed nanoseconds since Epoch, little-endian
//
// Tokens only need to round-trip. Ordering is always evaluated on the decoded
// pair, never on the string.
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Size is the decoded token length in bytes.
const Size = 24

// Epoch is tick zero.
var Epoch = time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidCursor marks a token that is not a valid encoding. It is a client
// error and never means "start from the beginning".
var ErrInvalidCursor = errors.New("invalid cursor")

var encoding = base64.URLEncoding

// Cursor is a position in a (timestamp, id) ordered scan.
type Cursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

// New builds a cursor, normalizing the timestamp to UTC.
func New(ts time.Time, id uuid.UUID) Cursor {
	return Cursor{Timestamp: ts.UTC(), ID: id}
}

// Encode returns the opaque token for c. Instants beyond roughly ±292 years
// of Epoch saturate.
func (c Cursor) Encode() string {
	var buf [Size]byte
	copy(buf[:16], c.ID[:])
	binary.LittleEndian.PutUint64(buf[16:], uint64(ticks(c.Timestamp)))
	return encoding.EncodeToString(buf[:])
}

// String is Encode.
func (c Cursor) String() string {
	return c.Encode()
}

// Compare orders cursors by timestamp, then id bytes.
func (c Cursor) Compare(other Cursor) int {
	if r := c.Timestamp.Compare(other.Timestamp); r != 0 {
		return r
	}
	return bytes.Compare(c.ID[:], other.ID[:])
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if len(raw) != Size {
		return Cursor{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidCursor, Size, len(raw))
	}

	var c Cursor
	copy(c.ID[:], raw[:16])
	n := int64(binary.LittleEndian.Uint64(raw[16:]))
	c.Timestamp = Epoch.Add(time.Duration(n))
	return c, nil
}

// Parse decodes an optional token; the empty string yields nil.
func Parse(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	c, err := Decode(token)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Cursor) MarshalText() ([]byte, error) {
	return []byte(c.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cursor) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// ticks relies on time.Sub saturating at the Duration limits.
func ticks(t time.Time) int64 {
	return int64(t.Sub(Epoch))
}
