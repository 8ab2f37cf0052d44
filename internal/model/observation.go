package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/payload"
)

// Update is one producer-supplied sighting of an entity, before it is
// content-addressed and written to the log.
type Update struct {
	Type      EntityType
	SourceID  uuid.UUID
	Timestamp time.Time

	// EntityID overrides extraction when Valid.
	EntityID uuid.NullUUID

	Data payload.Value
}

// Observation is one immutable row of the observation log. It references its
// payload by hash. EntityID is uuid.Nil for entity-less payloads.
type Observation struct {
	ID        uuid.UUID    `json:"observation_id"`
	Type      EntityType   `json:"type"`
	SourceID  uuid.UUID    `json:"source_id"`
	Timestamp time.Time    `json:"timestamp"`
	EntityID  uuid.UUID    `json:"entity_id"`
	Hash      payload.Hash `json:"hash"`
}

// HasEntity reports whether the observation is keyed to a specific entity.
func (o Observation) HasEntity() bool {
	return o.EntityID != uuid.Nil
}

// Key returns the version key the observation contributes to.
func (o Observation) Key() Key {
	return Key{Type: o.Type, EntityID: o.EntityID}
}

// ObservationView is an observation joined with its payload.
type ObservationView struct {
	Observation
	Data payload.Value `json:"data"`
}

// Key identifies one version history.
type Key struct {
	Type     EntityType
	EntityID uuid.UUID
}

// Object is a content-addressed payload.
type Object struct {
	Hash payload.Hash  `json:"hash"`
	Data payload.Value `json:"data"`
}

// EntityExtractor derives an entity id from a payload. It returns false when
// the payload has no identifiable entity.
type EntityExtractor func(t EntityType, data payload.Value) (uuid.UUID, bool)

// ExtractEntityID reads a UUID string from an object's "id" key, falling back
// to "_id".
func ExtractEntityID(_ EntityType, data payload.Value) (uuid.UUID, bool) {
	obj, ok := data.(payload.Object)
	if !ok {
		return uuid.Nil, false
	}
	for _, key := range []string{"id", "_id"} {
		v, ok := obj.Lookup(key)
		if !ok {
			continue
		}
		s, ok := v.(payload.String)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(string(s)); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}
