package harness

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/testutil"
	"github.com/roach88/chronicle/internal/versioning"
)

// evaluate checks every assertion and records failures on result. The
// returned error is reserved for store failures.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, result *Result) error {
	for i, a := range assertions {
		msg, err := h.check(ctx, a, result)
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if msg != "" {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %s", i, a.Type, msg))
		}
	}
	return nil
}

// check returns a failure message, or "" when the assertion holds.
func (h *Harness) check(ctx context.Context, a Assertion, result *Result) (string, error) {
	switch a.Type {
	case AssertObservations:
		if result.Observations != a.Count {
			return fmt.Sprintf("expected %d observations, got %d", a.Count, result.Observations), nil
		}
		return "", nil

	case AssertObjects:
		if result.Objects != a.Count {
			return fmt.Sprintf("expected %d objects, got %d", a.Count, result.Objects), nil
		}
		return "", nil

	case AssertConsistent:
		return h.checkConsistent(ctx, result)
	}

	t, err := model.ParseEntityType(a.EntityType)
	if err != nil {
		return "", err
	}
	entity := a.Entity
	if entity == "" {
		entity = noEntity
	}
	history, ok := result.History(t, entity)
	if !ok {
		return fmt.Sprintf("no history for %s %s", t, entity), nil
	}

	switch a.Type {
	case AssertVersions:
		if len(history.Versions) != a.Count {
			return fmt.Sprintf("%s %s: expected %d versions, got %d", t, entity, a.Count, len(history.Versions)), nil
		}
		return "", nil

	case AssertVersionAt:
		offset, err := parseOffset(a.At)
		if err != nil {
			return "", err
		}
		got, want := "none", "none"
		if v, ok := versioning.At(history.Versions, testutil.DefaultStart.Add(offset)); ok {
			got = strconv.Itoa(v.Number)
		}
		if a.Version != nil {
			want = strconv.Itoa(*a.Version)
		}
		if got != want {
			return fmt.Sprintf("%s %s at %s: expected version %s, got %s", t, entity, a.At, want, got), nil
		}
		return "", nil

	case AssertCurrent:
		return h.checkCurrent(ctx, history, a.Data)
	}

	return "", fmt.Errorf("unknown assertion type %q", a.Type)
}

func (h *Harness) checkCurrent(ctx context.Context, history History, want any) (string, error) {
	n := len(history.Versions)
	if n == 0 || !history.Versions[n-1].IsOpen() {
		return fmt.Sprintf("%s %s: no open version", history.Type, history.Entity), nil
	}

	expected, err := payload.FromAny(want)
	if err != nil {
		return "", err
	}
	obj, err := h.store.Object(ctx, history.Versions[n-1].Hash)
	if err != nil {
		return "", err
	}

	wantBytes, gotBytes := payload.Canonical(expected), payload.Canonical(obj.Data)
	if !bytes.Equal(wantBytes, gotBytes) {
		return fmt.Sprintf("%s %s: expected current %s, got %s", history.Type, history.Entity, wantBytes, gotBytes), nil
	}
	return "", nil
}

func (h *Harness) checkConsistent(ctx context.Context, result *Result) (string, error) {
	for _, history := range result.Histories {
		derived, err := h.store.DeriveVersions(ctx, history.Type, history.EntityID)
		if err != nil {
			return "", err
		}
		if !sameVersions(history.Versions, derived) {
			return fmt.Sprintf("%s %s: stored versions differ from the log", history.Type, history.Entity), nil
		}
	}
	return "", nil
}

func sameVersions(a, b []model.Version) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Number != y.Number || x.Hash != y.Hash || x.Observations != y.Observations ||
			!x.ValidFrom.Equal(y.ValidFrom) || !x.LastSeen.Equal(y.LastSeen) || !sameEnd(x.ValidTo, y.ValidTo) {
			return false
		}
	}
	return true
}

func sameEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
