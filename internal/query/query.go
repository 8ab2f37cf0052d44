// Package query describes the reads served over the observation log and the
// version table: filters, bounds, sort direction, cursor and page size.
//
// Queries are plain values. Normalize fills defaults and rejects invalid
// combinations; compilation to SQL lives in package querysql.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/cursor"
	"github.com/roach88/chronicle/internal/model"
)

// ErrInvalidQuery marks a query rejected before it reaches storage.
var ErrInvalidQuery = errors.New("invalid query")

// Order is the scan direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder accepts "asc" or "desc" in any case. The empty string is Asc.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: order must be asc or desc, got %q", ErrInvalidQuery, s)
	}
}

// Limits bounds page sizes.
type Limits struct {
	DefaultCount       int
	MaxCount           int
	DefaultEntityCount int
	// PlayerEntityCount replaces DefaultEntityCount for player snapshots.
	PlayerEntityCount int
	MaxEntityCount    int
}

// DefaultLimits mirrors the public API defaults.
var DefaultLimits = Limits{
	DefaultCount:       100,
	MaxCount:           1000,
	DefaultEntityCount: 1000,
	PlayerEntityCount:  2000,
	MaxEntityCount:     2000,
}

// ObservationQuery reads raw observations sorted by (timestamp, observation id).
type ObservationQuery struct {
	Types   []model.EntityType
	IDs     []uuid.UUID
	Sources []uuid.UUID

	// Before and After are strict bounds on timestamp.
	Before *time.Time
	After  *time.Time

	Order Order
	Page  *cursor.Cursor
	Count int
}

// Normalize validates q and fills defaults.
func (q ObservationQuery) Normalize(l Limits) (ObservationQuery, error) {
	for _, t := range q.Types {
		if !t.Valid() {
			return q, fmt.Errorf("%w: unknown entity type %d", ErrInvalidQuery, int16(t))
		}
	}
	order, err := ParseOrder(string(q.Order))
	if err != nil {
		return q, err
	}
	q.Order = order

	count, err := pageSize(q.Count, l.DefaultCount, l.MaxCount)
	if err != nil {
		return q, err
	}
	q.Count = count
	return q, nil
}

// VersionQuery reads versions of one entity type.
//
// Range mode (default) sorts by (valid_from, entity id) with optional strict
// bounds on valid_from. Snapshot mode (At or Current) returns at most one
// version per entity, sorted and paged by entity id only.
type VersionQuery struct {
	Type model.EntityType
	IDs  []uuid.UUID

	Before *time.Time
	After  *time.Time
	Order  Order

	// At selects the version whose interval contains the instant.
	At *time.Time
	// Current selects open versions.
	Current bool

	Page  *cursor.Cursor
	Count int
}

// Snapshot reports whether q is answered per entity rather than as a range.
func (q VersionQuery) Snapshot() bool {
	return q.At != nil || q.Current
}

// Normalize validates q and fills defaults.
func (q VersionQuery) Normalize(l Limits) (VersionQuery, error) {
	if !q.Type.Valid() {
		return q, fmt.Errorf("%w: entity type is required", ErrInvalidQuery)
	}

	if q.Snapshot() {
		if q.At != nil && q.Current {
			return q, fmt.Errorf("%w: at and current are mutually exclusive", ErrInvalidQuery)
		}
		if q.Before != nil || q.After != nil {
			return q, fmt.Errorf("%w: before/after cannot be combined with a snapshot", ErrInvalidQuery)
		}
		if q.Order == Desc {
			return q, fmt.Errorf("%w: snapshots are ordered by entity id", ErrInvalidQuery)
		}
		q.Order = Asc

		def := l.DefaultEntityCount
		if q.Type == model.Player && l.PlayerEntityCount > 0 {
			def = l.PlayerEntityCount
		}
		count, err := pageSize(q.Count, def, l.MaxEntityCount)
		if err != nil {
			return q, err
		}
		q.Count = count
		return q, nil
	}

	order, err := ParseOrder(string(q.Order))
	if err != nil {
		return q, err
	}
	q.Order = order

	count, err := pageSize(q.Count, l.DefaultCount, l.MaxCount)
	if err != nil {
		return q, err
	}
	q.Count = count
	return q, nil
}

func pageSize(count, def, maxCount int) (int, error) {
	switch {
	case count == 0:
		return def, nil
	case count < 0 || count > maxCount:
		return 0, fmt.Errorf("%w: count must be between 1 and %d, got %d", ErrInvalidQuery, maxCount, count)
	default:
		return count, nil
	}
}

// Page is one page of results. Next is nil when the scan is exhausted.
type Page[T any] struct {
	Items []T            `json:"items"`
	Next  *cursor.Cursor `json:"next_page"`
}
