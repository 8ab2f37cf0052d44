package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// ID returns a readable deterministic UUID whose last eight bytes hold n,
// e.g. ID(1) = 00000000-0000-0000-0000-000000000001.
func ID(n uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}

// SequenceIDGenerator returns ID(1), ID(2), ... in order. The ids sort
// bytewise in generation order, like UUIDv7 within one process.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix byte
	next   uint64
}

// NewSequenceIDGenerator creates a generator. prefix is stored in the first
// byte so ids from different generators never collide.
func NewSequenceIDGenerator(prefix byte) *SequenceIDGenerator {
	return &SequenceIDGenerator{prefix: prefix}
}

// New returns the next id.
func (g *SequenceIDGenerator) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	id := ID(g.next)
	id[0] = g.prefix
	return id
}

// FixedIDGenerator returns pre-set ids in order, then falls back to a
// sequence. Tests use it to force tie-break order between observations that
// share a timestamp.
type FixedIDGenerator struct {
	mu       sync.Mutex
	ids      []uuid.UUID
	fallback *SequenceIDGenerator
}

// NewFixedIDGenerator creates a generator yielding ids first.
func NewFixedIDGenerator(ids ...uuid.UUID) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids, fallback: NewSequenceIDGenerator(0xff)}
}

// New returns the next preset id, or a sequence id once they run out.
func (g *FixedIDGenerator) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return g.fallback.New()
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}
