package harness

import (
	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/store"
)

// History is the stored version history of one entity after a run.
type History struct {
	Type     model.EntityType `json:"type"`
	Entity   string           `json:"entity"`
	EntityID uuid.UUID        `json:"entity_id"`
	Versions []model.Version  `json:"versions"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// Appends holds the store's result for each append step, in order.
	Appends []store.AppendResult `json:"appends"`

	// Histories lists every entity in order of first appearance.
	Histories []History `json:"histories"`

	Observations int `json:"observations"`
	Objects      int `json:"objects"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Errors:    []string{},
		Appends:   []store.AppendResult{},
		Histories: []History{},
	}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// History returns the history for an entity label, if present.
func (r *Result) History(t model.EntityType, entity string) (History, bool) {
	for _, h := range r.Histories {
		if h.Type == t && h.Entity == entity {
			return h, true
		}
	}
	return History{}, false
}
