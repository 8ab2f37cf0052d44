// Package versioning collapses an entity's observation log into versions.
//
// Derive is the reference algorithm: a single run-length pass over hashes in
// (timestamp, observation id) order. Advance applies one strictly-later
// observation to the open version and must always agree with Derive.
package versioning

import (
	"bytes"
	"slices"
	"time"

	"github.com/roach88/chronicle/internal/model"
)

// Compare orders observations by timestamp, then by observation id bytes.
func Compare(a, b model.Observation) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// Derive returns the versions for the observations of one key.
// The input need not be sorted and is not modified. Zero observations
// yield an empty, non-nil slice.
func Derive(observations []model.Observation) []model.Version {
	versions := []model.Version{}
	if len(observations) == 0 {
		return versions
	}

	sorted := slices.Clone(observations)
	slices.SortFunc(sorted, Compare)

	cur := open(sorted[0], 0)
	for _, obs := range sorted[1:] {
		if obs.Hash == cur.Hash {
			cur.LastSeen = obs.Timestamp
			cur.Observations++
			continue
		}
		closeAt := obs.Timestamp
		cur.ValidTo = &closeAt
		versions = append(versions, cur)
		cur = open(obs, cur.Number+1)
	}

	return append(versions, cur)
}

// Advance applies obs, which must sort after every observation already in
// current, to the open version current. It returns the updated version and,
// when the hash changed, the newly opened one.
func Advance(current model.Version, obs model.Observation) (model.Version, *model.Version) {
	if obs.Hash == current.Hash {
		current.LastSeen = obs.Timestamp
		current.Observations++
		return current, nil
	}

	closeAt := obs.Timestamp
	current.ValidTo = &closeAt
	next := open(obs, current.Number+1)
	return current, &next
}

// At returns the version whose interval contains t, if any.
func At(versions []model.Version, t time.Time) (model.Version, bool) {
	for _, v := range versions {
		if v.Contains(t) {
			return v, true
		}
	}
	return model.Version{}, false
}

func open(obs model.Observation, number int) model.Version {
	return model.Version{
		Type:         obs.Type,
		EntityID:     obs.EntityID,
		Number:       number,
		Hash:         obs.Hash,
		ValidFrom:    obs.Timestamp,
		LastSeen:     obs.Timestamp,
		Observations: 1,
	}
}
