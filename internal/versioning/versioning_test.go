package versioning

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
)

var (
	entity = uuid.MustParse("8d2f4a8e-38b4-4e2a-9f4b-3a6a4c1b2d11")
	hashA  = payload.HashOf(payload.String("A"))
	hashB  = payload.HashOf(payload.String("B"))
	base   = time.Date(2020, 9, 1, 12, 0, 0, 0, time.UTC)
)

func at(i int) time.Time {
	return base.Add(time.Duration(i) * time.Minute)
}

func obs(i int, h payload.Hash) model.Observation {
	return model.Observation{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i)}),
		Type:      model.Player,
		EntityID:  entity,
		Timestamp: at(i),
		Hash:      h,
	}
}

func TestDerive_Empty(t *testing.T) {
	versions := Derive(nil)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}

func TestDerive_Single(t *testing.T) {
	versions := Derive([]model.Observation{obs(1, hashA)})
	require.Len(t, versions, 1)
	assert.Equal(t, 0, versions[0].Number)
	assert.Equal(t, at(1), versions[0].ValidFrom)
	assert.Nil(t, versions[0].ValidTo)
	assert.Equal(t, 1, versions[0].Observations)
}

func TestDerive_AllSameHash(t *testing.T) {
	versions := Derive([]model.Observation{obs(1, hashA), obs(2, hashA), obs(3, hashA)})
	require.Len(t, versions, 1)
	assert.Equal(t, at(1), versions[0].ValidFrom)
	assert.Equal(t, at(3), versions[0].LastSeen)
	assert.Equal(t, 3, versions[0].Observations)
	assert.Nil(t, versions[0].ValidTo)
}

func TestDerive_RunLength(t *testing.T) {
	input := []model.Observation{
		obs(1, hashA), obs(2, hashA), obs(3, hashB), obs(4, hashB), obs(5, hashA),
	}

	versions := Derive(input)
	require.Len(t, versions, 3)

	assert.Equal(t, hashA, versions[0].Hash)
	assert.Equal(t, at(1), versions[0].ValidFrom)
	require.NotNil(t, versions[0].ValidTo)
	assert.Equal(t, at(3), *versions[0].ValidTo)

	assert.Equal(t, hashB, versions[1].Hash)
	assert.Equal(t, at(3), versions[1].ValidFrom)
	require.NotNil(t, versions[1].ValidTo)
	assert.Equal(t, at(5), *versions[1].ValidTo)

	assert.Equal(t, hashA, versions[2].Hash)
	assert.Equal(t, at(5), versions[2].ValidFrom)
	assert.Nil(t, versions[2].ValidTo)

	for i, v := range versions {
		assert.Equal(t, i, v.Number)
		assert.Equal(t, model.Player, v.Type)
		assert.Equal(t, entity, v.EntityID)
	}
}

func TestDerive_UnsortedInput(t *testing.T) {
	input := []model.Observation{
		obs(5, hashA), obs(3, hashB), obs(1, hashA), obs(4, hashB), obs(2, hashA),
	}
	original := append([]model.Observation(nil), input...)

	versions := Derive(input)
	require.Len(t, versions, 3)
	assert.Equal(t, at(1), versions[0].ValidFrom)
	assert.Equal(t, original, input, "input must not be reordered")
}

func TestDerive_TieBrokenByObservationID(t *testing.T) {
	low := obs(1, hashA)
	high := obs(1, hashB)
	low.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

	forward := Derive([]model.Observation{low, high})
	backward := Derive([]model.Observation{high, low})

	assert.Equal(t, forward, backward)
	require.Len(t, forward, 2)
	assert.Equal(t, hashA, forward[0].Hash)
	assert.Equal(t, hashB, forward[1].Hash)
}

func TestAt(t *testing.T) {
	versions := Derive([]model.Observation{
		obs(1, hashA), obs(2, hashA), obs(3, hashB), obs(4, hashB), obs(5, hashA),
	})

	for _, ts := range []time.Time{at(3), at(4), at(5).Add(-time.Nanosecond)} {
		v, ok := At(versions, ts)
		require.True(t, ok)
		assert.Equal(t, hashB, v.Hash)
	}

	_, ok := At(versions, at(0))
	assert.False(t, ok)

	v, ok := At(versions, at(100))
	require.True(t, ok)
	assert.Equal(t, 2, v.Number)
}

func TestAdvance_AgreesWithDerive(t *testing.T) {
	input := []model.Observation{
		obs(1, hashA), obs(2, hashA), obs(3, hashB), obs(4, hashB), obs(5, hashA), obs(6, hashA),
	}

	var closed []model.Version
	current := Derive(input[:1])[0]
	for _, o := range input[1:] {
		updated, next := Advance(current, o)
		if next != nil {
			closed = append(closed, updated)
			current = *next
		} else {
			current = updated
		}
	}

	assert.Equal(t, Derive(input), append(closed, current))
}
