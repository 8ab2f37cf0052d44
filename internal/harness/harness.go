package harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/testutil"
)

// noEntity labels updates whose payload carries no entity id.
const noEntity = "none"

// Harness executes one scenario against its own in-memory store.
type Harness struct {
	store    *store.Store
	entities *labels
	sources  *labels

	// keys lists (type, entity label) pairs in order of first appearance.
	keys []historyKey
	seen map[historyKey]bool
}

type historyKey struct {
	Type   model.EntityType
	Entity string
}

// labels maps scenario labels to deterministic UUIDs.
type labels struct {
	gen *testutil.SequenceIDGenerator
	ids map[string]uuid.UUID
}

func newLabels(prefix byte) *labels {
	return &labels{gen: testutil.NewSequenceIDGenerator(prefix), ids: make(map[string]uuid.UUID)}
}

// id resolves a label. Literal UUIDs pass through; "" and "none" are uuid.Nil.
func (l *labels) id(label string) uuid.UUID {
	if label == "" || label == noEntity {
		return uuid.Nil
	}
	if id, err := uuid.Parse(label); err == nil {
		return id
	}
	if id, ok := l.ids[label]; ok {
		return id
	}
	id := l.gen.New()
	l.ids[label] = id
	return id
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential
// observation ids, so identical scenarios produce identical stores.
//
// Execution flow:
// 1. Open the store (version maintenance per scenario)
// 2. Execute steps in order
// 3. Collect histories and table counts
// 4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts := []store.Option{store.WithIDGenerator(testutil.NewSequenceIDGenerator(0x01))}
	if scenario.MaintainVersions != nil {
		opts = append(opts, store.WithVersionMaintenance(*scenario.MaintainVersions))
	}

	st, err := store.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		entities: newLabels(0x0e),
		sources:  newLabels(0x05),
		seen:     make(map[historyKey]bool),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	if err := h.evaluate(ctx, scenario.Assertions, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	if step.Rebuild != "" {
		t, err := model.ParseEntityType(step.Rebuild)
		if err != nil {
			return err
		}
		report, err := h.store.RebuildAll(ctx, t)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return report.Failed[0]
		}
		return nil
	}

	updates := make([]model.Update, 0, len(step.Append))
	for i, us := range step.Append {
		u, err := h.update(us)
		if err != nil {
			return fmt.Errorf("append[%d]: %w", i, err)
		}
		updates = append(updates, u)
	}

	res, err := h.store.Append(ctx, updates)
	if err != nil {
		return err
	}
	result.Appends = append(result.Appends, res)
	return nil
}

func (h *Harness) update(us UpdateStep) (model.Update, error) {
	t, err := model.ParseEntityType(us.Type)
	if err != nil {
		return model.Update{}, err
	}
	offset, err := parseOffset(us.At)
	if err != nil {
		return model.Update{}, err
	}
	data, err := payload.FromAny(us.Data)
	if err != nil {
		return model.Update{}, err
	}

	u := model.Update{
		Type:      t,
		SourceID:  h.sources.id(sourceLabel(us.Source)),
		Timestamp: testutil.DefaultStart.Add(offset),
		Data:      data,
	}

	label := us.Entity
	if label != "" {
		u.EntityID = uuid.NullUUID{UUID: h.entities.id(label), Valid: true}
	} else if id, ok := model.ExtractEntityID(t, data); ok {
		label = id.String()
	} else {
		label = noEntity
	}
	h.track(historyKey{Type: t, Entity: label})
	return u, nil
}

func sourceLabel(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func (h *Harness) track(k historyKey) {
	if !h.seen[k] {
		h.seen[k] = true
		h.keys = append(h.keys, k)
	}
}

func (h *Harness) collect(ctx context.Context, result *Result) error {
	for _, k := range h.keys {
		id := h.entities.id(k.Entity)
		versions, err := h.store.EntityVersions(ctx, k.Type, id)
		if err != nil {
			return fmt.Errorf("collect %s %s: %w", k.Type, k.Entity, err)
		}
		result.Histories = append(result.Histories, History{
			Type:     k.Type,
			Entity:   k.Entity,
			EntityID: id,
			Versions: versions,
		})
	}

	db := h.store.DB()
	if err := db.GetContext(ctx, &result.Observations, "SELECT COUNT(*) FROM observations"); err != nil {
		return fmt.Errorf("count observations: %w", err)
	}
	if err := db.GetContext(ctx, &result.Objects, "SELECT COUNT(*) FROM objects"); err != nil {
		return fmt.Errorf("count objects: %w", err)
	}
	return nil
}
