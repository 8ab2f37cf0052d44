package store

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/query"
	"github.com/roach88/chronicle/internal/testutil"
)

func TestVersions_RunLength(t *testing.T) {
	s := createTestStore(t)
	id := testutil.ID(1)
	clock := runLengthFixture(t, s, id)

	versions, err := s.EntityVersions(context.Background(), model.Player, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	hashA := payload.HashOf(payload.MustParse(`{"v":"A"}`))
	hashB := payload.HashOf(payload.MustParse(`{"v":"B"}`))
	t1, t2, t3, t4, t5 := clock.At(0), clock.At(1), clock.At(2), clock.At(3), clock.At(4)

	assert.Equal(t, 0, versions[0].Number)
	assert.Equal(t, hashA, versions[0].Hash)
	assert.True(t, versions[0].ValidFrom.Equal(t1))
	require.NotNil(t, versions[0].ValidTo)
	assert.True(t, versions[0].ValidTo.Equal(t3))
	assert.True(t, versions[0].LastSeen.Equal(t2))
	assert.Equal(t, 2, versions[0].Observations)

	assert.Equal(t, 1, versions[1].Number)
	assert.Equal(t, hashB, versions[1].Hash)
	assert.True(t, versions[1].ValidFrom.Equal(t3))
	require.NotNil(t, versions[1].ValidTo)
	assert.True(t, versions[1].ValidTo.Equal(t5))
	assert.True(t, versions[1].LastSeen.Equal(t4))

	assert.Equal(t, 2, versions[2].Number)
	assert.Equal(t, hashA, versions[2].Hash)
	assert.True(t, versions[2].ValidFrom.Equal(t5))
	assert.Nil(t, versions[2].ValidTo)
	assert.Equal(t, 1, versions[2].Observations)
}

func TestVersions_AsOf(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testutil.ID(1)
	clock := runLengthFixture(t, s, id)
	hashB := payload.HashOf(payload.MustParse(`{"v":"B"}`))

	// Every instant in [t3, t5) resolves to the B version.
	for _, at := range []int{2, 3} {
		instant := clock.At(at)
		page, err := s.Versions(ctx, query.VersionQuery{Type: model.Player, IDs: []uuid.UUID{id}, At: &instant})
		require.NoError(t, err)
		require.Len(t, page.Items, 1, "at t%d", at+1)
		assert.Equal(t, hashB, page.Items[0].Hash)
		assert.Equal(t, `{"v":"B"}`, string(payload.Canonical(page.Items[0].Data)))
	}

	just := clock.At(4).Add(-1)
	page, err := s.Versions(ctx, query.VersionQuery{Type: model.Player, IDs: []uuid.UUID{id}, At: &just})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, hashB, page.Items[0].Hash)

	before := clock.At(0).Add(-1)
	page, err = s.Versions(ctx, query.VersionQuery{Type: model.Player, IDs: []uuid.UUID{id}, At: &before})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.Next)

	// Unknown keys are an empty answer, not an error.
	unknown := clock.At(3)
	page, err = s.Versions(ctx, query.VersionQuery{Type: model.Player, IDs: []uuid.UUID{testutil.ID(99)}, At: &unknown})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestVersions_Current(t *testing.T) {
	s := createTestStore(t)
	runLengthFixture(t, s, testutil.ID(1))
	runLengthFixture(t, s, testutil.ID(2))

	page, err := s.Versions(context.Background(), query.VersionQuery{Type: model.Player, Current: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, v := range page.Items {
		assert.True(t, v.IsOpen())
		assert.Equal(t, 2, v.Number)
	}
	assert.Equal(t, testutil.ID(1), page.Items[0].EntityID)
	assert.Equal(t, testutil.ID(2), page.Items[1].EntityID)
}

func TestVersions_OutOfOrderArrivalMatchesDerive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testutil.ID(1)
	clock := testutil.NewDeterministicClock()

	// Log order t1:A t2:B t3:B t4:A, delivered as t4, t1, t3, t2.
	arrivals := []struct {
		step int
		data string
	}{
		{3, `{"v":"A"}`},
		{0, `{"v":"A"}`},
		{2, `{"v":"B"}`},
		{1, `{"v":"B"}`},
	}
	for _, a := range arrivals {
		mustAppend(t, s, createTestUpdate(model.Player, id, clock.At(a.step), a.data))

		stored, err := s.EntityVersions(ctx, model.Player, id)
		require.NoError(t, err)
		derived, err := s.DeriveVersions(ctx, model.Player, id)
		require.NoError(t, err)
		assert.Equal(t, derived, stored)
	}

	final, err := s.EntityVersions(ctx, model.Player, id)
	require.NoError(t, err)
	require.Len(t, final, 3)
	assert.True(t, final[1].ValidFrom.Equal(clock.At(1)))
	assert.True(t, final[2].ValidFrom.Equal(clock.At(3)))
}

func TestVersions_IncrementalEqualsRebuild(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()
	rng := rand.New(rand.NewSource(7))

	ids := []int{1, 2, 3}
	for round := 0; round < 40; round++ {
		batch := make([]model.Update, 0, 3)
		for i := 0; i < 1+rng.Intn(3); i++ {
			id := testutil.ID(uint64(ids[rng.Intn(len(ids))]))
			// Mostly forward in time with occasional late arrivals and repeats.
			step := round*2 + rng.Intn(3) - 1
			if rng.Intn(6) == 0 {
				step = rng.Intn(round + 1)
			}
			data := fmt.Sprintf(`{"state":%d}`, rng.Intn(3))
			batch = append(batch, createTestUpdate(model.Player, id, clock.At(max(step, 0)), data))
		}
		mustAppend(t, s, batch...)
	}

	for _, n := range ids {
		id := testutil.ID(uint64(n))
		incremental, err := s.EntityVersions(ctx, model.Player, id)
		require.NoError(t, err)
		derived, err := s.DeriveVersions(ctx, model.Player, id)
		require.NoError(t, err)
		require.Equal(t, derived, incremental, "entity %d", n)

		_, err = s.RebuildEntity(ctx, model.Player, id)
		require.NoError(t, err)
		rebuilt, err := s.EntityVersions(ctx, model.Player, id)
		require.NoError(t, err)
		assert.Equal(t, incremental, rebuilt, "entity %d", n)
	}
}

func TestVersions_MaintenanceOffThenRebuildAll(t *testing.T) {
	s := createTestStore(t, WithVersionMaintenance(false))
	ctx := context.Background()
	id := testutil.ID(1)
	runLengthFixture(t, s, id)

	versions, err := s.EntityVersions(ctx, model.Player, id)
	require.NoError(t, err)
	assert.Empty(t, versions)

	report, err := s.RebuildAll(ctx, model.Player)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Entities)
	assert.Equal(t, 3, report.Versions)

	versions, err = s.EntityVersions(ctx, model.Player, id)
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestVersions_SameInstantDifferentHashes(t *testing.T) {
	first := testutil.ID(100)
	second := testutil.ID(200)
	s := createTestStore(t, WithIDGenerator(testutil.NewFixedIDGenerator(first, second)))
	ctx := context.Background()
	ts := testutil.DefaultStart
	id := testutil.ID(1)

	mustAppend(t, s,
		createTestUpdate(model.Team, id, ts, `{"v":"A"}`),
		createTestUpdate(model.Team, id, ts, `{"v":"B"}`),
	)

	versions, err := s.EntityVersions(ctx, model.Team, id)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	// The observation id breaks the tie: A is a zero-length version.
	assert.Equal(t, payload.HashOf(payload.MustParse(`{"v":"A"}`)), versions[0].Hash)
	require.NotNil(t, versions[0].ValidTo)
	assert.True(t, versions[0].ValidTo.Equal(ts))
	assert.True(t, versions[1].IsOpen())
}

func TestEntityVersions_UnknownKeyEmpty(t *testing.T) {
	s := createTestStore(t)

	versions, err := s.EntityVersions(context.Background(), model.Player, testutil.ID(1))
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}
