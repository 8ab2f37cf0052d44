package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/testutil"
)

var (
	testSource  = uuid.MustParse("5c1f6f2e-8a0b-4c5e-9d7a-2f3b4c5d6e7f")
	otherSource = uuid.MustParse("7e6d5c4b-3a29-4180-8f7e-6d5c4b3a2918")
)

// createTestStore creates a new store backed by a temp SQLite file.
// Observation ids come from a sequence so tie-break order is predictable.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithIDGenerator(testutil.NewSequenceIDGenerator(0x01))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUpdate builds an update with an explicit entity id.
func createTestUpdate(typ model.EntityType, id uuid.UUID, ts time.Time, data string) model.Update {
	return model.Update{
		Type:      typ,
		SourceID:  testSource,
		Timestamp: ts,
		EntityID:  uuid.NullUUID{UUID: id, Valid: true},
		Data:      payload.MustParse(data),
	}
}

func mustAppend(t *testing.T, s *Store, updates ...model.Update) AppendResult {
	t.Helper()
	res, err := s.Append(context.Background(), updates)
	require.NoError(t, err)
	return res
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

// runLengthFixture appends [t1:A, t2:A, t3:B, t4:B, t5:A] for one player and
// returns the clock used.
func runLengthFixture(t *testing.T, s *Store, id uuid.UUID) *testutil.DeterministicClock {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	for _, data := range []string{`{"v":"A"}`, `{"v":"A"}`, `{"v":"B"}`, `{"v":"B"}`, `{"v":"A"}`} {
		mustAppend(t, s, createTestUpdate(model.Player, id, clock.Next(), data))
	}
	return clock
}
