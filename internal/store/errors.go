package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/model"
)

// ErrNotFound is returned when an object is absent.
var ErrNotFound = errors.New("not found")

// ErrInvalidUpdate marks an update rejected before any write.
var ErrInvalidUpdate = errors.New("invalid update")

// RebuildError records one entity that failed during RebuildAll.
type RebuildError struct {
	Type     model.EntityType `json:"type"`
	EntityID uuid.UUID        `json:"entity_id"`
	Err      error            `json:"-"`
}

// Error implements the error interface.
func (e *RebuildError) Error() string {
	return fmt.Sprintf("rebuild %s %s: %v", e.Type, e.EntityID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RebuildError) Unwrap() error {
	return e.Err
}

// Message returns the underlying error text for reports.
func (e *RebuildError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
