package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/payload"
)

// Version is one maximal run of identical hashes for a key, ordered by
// (timestamp, observation id). ValidTo is nil for the open, latest run.
type Version struct {
	Type      EntityType   `json:"type"`
	EntityID  uuid.UUID    `json:"entity_id"`
	Number    int          `json:"version"`
	Hash      payload.Hash `json:"hash"`
	ValidFrom time.Time    `json:"valid_from"`
	ValidTo   *time.Time   `json:"valid_to"`

	// LastSeen is the timestamp of the last observation in the run.
	LastSeen time.Time `json:"last_seen"`
	// Observations counts the log rows in the run.
	Observations int `json:"observations"`
}

// Key returns the version history the version belongs to.
func (v Version) Key() Key {
	return Key{Type: v.Type, EntityID: v.EntityID}
}

// IsOpen reports whether v is the latest run.
func (v Version) IsOpen() bool {
	return v.ValidTo == nil
}

// Contains reports whether t falls in [ValidFrom, ValidTo).
func (v Version) Contains(t time.Time) bool {
	if t.Before(v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || t.Before(*v.ValidTo)
}

// VersionView is a version joined with its payload.
type VersionView struct {
	Version
	Data payload.Value `json:"data"`
}
