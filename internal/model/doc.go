// Package model defines the records shared by the store, the version engine
// and the query layer: entity types, observations, versions and objects.
//
// Timestamps are always UTC. An absent entity id is represented by uuid.Nil.
package model
