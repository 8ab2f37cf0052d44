package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/testutil"
)

// versionTableDump returns every column of a key's version rows as stored.
func versionTableDump(t *testing.T, s *Store, typ model.EntityType, id uuid.UUID) []versionRow {
	t.Helper()
	var rows []versionRow
	require.NoError(t, s.db.Select(&rows, `
		SELECT type, entity_id, version, hash, valid_from, valid_to, last_seen, observations
		FROM versions WHERE type = ? AND entity_id = ?
		ORDER BY version
	`, int16(typ), id[:]))
	return rows
}

func TestRebuildEntity_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testutil.ID(1)
	runLengthFixture(t, s, id)

	n, err := s.RebuildEntity(ctx, model.Player, id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	first := versionTableDump(t, s, model.Player, id)

	n, err = s.RebuildEntity(ctx, model.Player, id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	second := versionTableDump(t, s, model.Player, id)

	assert.Equal(t, first, second)
}

func TestRebuildEntity_RepairsDrift(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := testutil.ID(1)
	runLengthFixture(t, s, id)
	want := versionTableDump(t, s, model.Player, id)

	_, err := s.db.Exec(`UPDATE versions SET valid_to = NULL, observations = 99`)
	require.NoError(t, err)

	_, err = s.RebuildEntity(ctx, model.Player, id)
	require.NoError(t, err)
	assert.Equal(t, want, versionTableDump(t, s, model.Player, id))
}

func TestRebuildEntity_UnknownKey(t *testing.T) {
	s := createTestStore(t)

	n, err := s.RebuildEntity(context.Background(), model.Player, testutil.ID(404))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// corruptEntity registers an entity whose only observation has an unreadable
// timestamp, so rebuilding it fails while its neighbours succeed.
func corruptEntity(t *testing.T, s *Store, typ model.EntityType, id uuid.UUID) {
	t.Helper()
	var hash []byte
	require.NoError(t, s.db.Get(&hash, `SELECT hash FROM objects LIMIT 1`))

	obsID := testutil.ID(0xdead)
	_, err := s.db.Exec(`
		INSERT INTO observations (observation_id, type, source_id, timestamp, entity_id, hash)
		VALUES (?, ?, ?, 'not-a-time', ?, ?)
	`, obsID[:], int16(typ), testSource[:], id[:], hash)
	require.NoError(t, err)

	_, err = s.db.Exec(`INSERT INTO entities (type, entity_id, first_seen) VALUES (?, ?, 0)`, int16(typ), id[:])
	require.NoError(t, err)
}

func TestRebuildAll_SkipsFailedEntity(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			s := createTestStore(t, WithLogger(zap.New(core)), WithRebuildWorkers(workers))
			ctx := context.Background()

			runLengthFixture(t, s, testutil.ID(1))
			runLengthFixture(t, s, testutil.ID(3))
			bad := testutil.ID(2)
			corruptEntity(t, s, model.Player, bad)

			report, err := s.RebuildAll(ctx, model.Player)
			require.NoError(t, err)

			assert.Equal(t, 3, report.Entities)
			assert.Equal(t, 2, report.Rebuilt)
			assert.Equal(t, 6, report.Versions)
			require.Len(t, report.Failed, 1)
			assert.Equal(t, bad, report.Failed[0].EntityID)
			assert.Equal(t, model.Player, report.Failed[0].Type)
			assert.Error(t, report.Failed[0].Unwrap())

			warnings := logs.FilterMessage("rebuild entity failed, skipping")
			require.Equal(t, 1, warnings.Len())
			assert.Equal(t, zapcore.WarnLevel, warnings.All()[0].Level)
			assert.Equal(t, 1, logs.FilterMessage("rebuild finished").Len())

			// The healthy entities were rebuilt despite the failure.
			for _, n := range []uint64{1, 3} {
				versions, err := s.EntityVersions(ctx, model.Player, testutil.ID(n))
				require.NoError(t, err)
				assert.Len(t, versions, 3)
			}
		})
	}
}

func TestRebuildAll_ParallelWorkers(t *testing.T) {
	s := createTestStore(t, WithVersionMaintenance(false), WithRebuildWorkers(4))
	ctx := context.Background()

	const entities = 24
	for n := uint64(1); n <= entities; n++ {
		runLengthFixture(t, s, testutil.ID(n))
	}

	report, err := s.RebuildAll(ctx, model.Player)
	require.NoError(t, err)
	assert.Equal(t, entities, report.Entities)
	assert.Equal(t, entities, report.Rebuilt)
	assert.Equal(t, 3*entities, report.Versions)
	assert.Empty(t, report.Failed)

	for n := uint64(1); n <= entities; n++ {
		id := testutil.ID(n)
		got, err := s.EntityVersions(ctx, model.Player, id)
		require.NoError(t, err)
		want, err := s.DeriveVersions(ctx, model.Player, id)
		require.NoError(t, err)
		require.Len(t, got, 3, "entity %s", id)
		assert.Equal(t, want, got, "entity %s", id)
	}
}

func TestRebuildAll_Cancelled(t *testing.T) {
	s := createTestStore(t)
	runLengthFixture(t, s, testutil.ID(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RebuildAll(ctx, model.Player)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRebuildTypes(t *testing.T) {
	s := createTestStore(t, WithVersionMaintenance(false))
	ctx := context.Background()
	clock := testutil.NewDeterministicClock()

	mustAppend(t, s,
		createTestUpdate(model.Player, testutil.ID(1), clock.Next(), `{"p":1}`),
		createTestUpdate(model.Team, testutil.ID(2), clock.Next(), `{"t":1}`),
		createTestUpdate(model.Team, testutil.ID(3), clock.Next(), `{"t":2}`),
	)

	reports, err := s.RebuildTypes(ctx, model.Player, model.Team, model.Game)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, model.Player, reports[0].Type)
	assert.Equal(t, 1, reports[0].Rebuilt)
	assert.Equal(t, 2, reports[1].Rebuilt)
	assert.Equal(t, 0, reports[2].Entities)
	assert.Empty(t, reports[2].Failed)
}

func TestEntityIDs_Sorted(t *testing.T) {
	s := createTestStore(t)
	ts := testutil.DefaultStart

	mustAppend(t, s,
		createTestUpdate(model.Player, testutil.ID(3), ts, `{"n":3}`),
		createTestUpdate(model.Player, testutil.ID(1), ts, `{"n":1}`),
		createTestUpdate(model.Player, testutil.ID(2), ts, `{"n":2}`),
	)

	ids, err := s.EntityIDs(context.Background(), model.Player)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{testutil.ID(1), testutil.ID(2), testutil.ID(3)}, ids)

	none, err := s.EntityIDs(context.Background(), model.Team)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestKeyLocks_Serializes(t *testing.T) {
	locks := newKeyLocks()
	key := model.Key{Type: model.Player, EntityID: testutil.ID(1)}

	unlock := locks.Lock(key)
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		locks.Lock(key)()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first held")
	default:
	}

	unlock()
	<-acquired

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
