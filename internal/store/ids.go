package store

import "github.com/google/uuid"

// IDGenerator produces observation ids.
type IDGenerator interface {
	New() uuid.UUID
}

// UUIDv7Generator produces time-ordered UUIDv7 ids. Within one process ids
// are monotonic, which keeps same-timestamp observations in arrival order.
type UUIDv7Generator struct{}

// New returns a fresh UUIDv7.
func (UUIDv7Generator) New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
