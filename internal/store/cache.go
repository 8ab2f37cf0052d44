package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/payload"
)

// KnownHashes remembers hashes already durable in the object store so Put can
// skip the existence check. A miss only costs a re-check; hashes are immutable
// so entries never need invalidation.
type KnownHashes interface {
	Contains(h payload.Hash) bool
	Add(h payload.Hash)
}

// LRUKnownHashes is a bounded, concurrency-safe KnownHashes.
type LRUKnownHashes struct {
	cache *lru.Cache[payload.Hash, struct{}]
}

// NewLRUKnownHashes creates a cache holding up to size hashes.
func NewLRUKnownHashes(size int) (*LRUKnownHashes, error) {
	c, err := lru.New[payload.Hash, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &LRUKnownHashes{cache: c}, nil
}

// Contains reports whether h was added and not yet evicted.
func (k *LRUKnownHashes) Contains(h payload.Hash) bool {
	return k.cache.Contains(h)
}

// Add records h.
func (k *LRUKnownHashes) Add(h payload.Hash) {
	k.cache.Add(h, struct{}{})
}

// Len returns the number of cached hashes.
func (k *LRUKnownHashes) Len() int {
	return k.cache.Len()
}

func (s *Store) isKnown(h payload.Hash) bool {
	if s.known == nil {
		return false
	}
	if s.known.Contains(h) {
		metrics.KnownHashLookups.WithLabelValues("hit").Inc()
		return true
	}
	metrics.KnownHashLookups.WithLabelValues("miss").Inc()
	return false
}

func (s *Store) remember(hashes []payload.Hash) {
	if s.known == nil {
		return
	}
	for _, h := range hashes {
		s.known.Add(h)
	}
}
