package store

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/querysql"
)

// AppendResult summarizes one Append call.
type AppendResult struct {
	// Inserted counts new observation rows. Replays of rows already in the
	// log count as Duplicates.
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`

	NewObjects  int `json:"new_objects"`
	NewEntities int `json:"new_entities"`

	// Versions counts version rows written by continuous maintenance.
	Versions int `json:"versions"`
}

// observationRow is the persisted shape of an observation.
type observationRow struct {
	ID        uuid.UUID    `db:"observation_id"`
	Type      int16        `db:"type"`
	SourceID  uuid.UUID    `db:"source_id"`
	Timestamp int64        `db:"timestamp"`
	EntityID  uuid.UUID    `db:"entity_id"`
	Hash      payload.Hash `db:"hash"`
}

func (r observationRow) observation() model.Observation {
	return model.Observation{
		ID:        r.ID,
		Type:      model.EntityType(r.Type),
		SourceID:  r.SourceID,
		Timestamp: querysql.FromNanos(r.Timestamp),
		EntityID:  r.EntityID,
		Hash:      r.Hash,
	}
}

// Append records a batch of updates in one transaction: payloads into the
// object store, index rows into the observation log, new keys into the entity
// registry and, when maintenance is on, the affected versions.
//
// Rows equivalent to one already logged (same type, source, timestamp, entity
// and hash) are absorbed, so retrying a batch is a no-op. Arrival order does
// not matter.
func (s *Store) Append(ctx context.Context, updates []model.Update) (AppendResult, error) {
	var result AppendResult
	if len(updates) == 0 {
		return result, nil
	}
	start := time.Now()

	pending := make([]pendingObject, len(updates))
	candidates := make([]model.Observation, len(updates))
	for i, u := range updates {
		if !u.Type.Valid() {
			return result, fmt.Errorf("append: update %d: %w: unknown entity type %d", i, ErrInvalidUpdate, int16(u.Type))
		}
		if u.Timestamp.IsZero() {
			return result, fmt.Errorf("append: update %d: %w: timestamp is required", i, ErrInvalidUpdate)
		}
		if err := payload.CheckFinite(u.Data); err != nil {
			return result, fmt.Errorf("append: update %d: %w: %v", i, ErrInvalidUpdate, err)
		}

		pending[i] = newPendingObject(u.Data)
		candidates[i] = model.Observation{
			ID:        s.ids.New(),
			Type:      u.Type,
			SourceID:  u.SourceID,
			Timestamp: querysql.FromNanos(querysql.Nanos(u.Timestamp)),
			EntityID:  s.entityID(u),
			Hash:      pending[i].hash,
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	newObjects, err := s.putObjects(ctx, tx, pending)
	if err != nil {
		return result, fmt.Errorf("append: %w", err)
	}
	result.NewObjects = len(newObjects)

	inserted, err := insertObservations(ctx, tx, candidates)
	if err != nil {
		return result, fmt.Errorf("append: %w", err)
	}
	result.Inserted = len(inserted)
	result.Duplicates = len(candidates) - len(inserted)

	touched := groupByKey(inserted)
	keys := sortedKeys(touched)

	result.NewEntities, err = registerEntities(ctx, tx, keys, touched)
	if err != nil {
		return result, fmt.Errorf("append: %w", err)
	}

	if s.maintainVersions {
		result.Versions, err = s.maintainKeys(ctx, tx, keys, touched)
		if err != nil {
			return result, fmt.Errorf("append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("append: commit: %w", err)
	}
	s.rememberPending(pending)

	for _, obs := range inserted {
		metrics.ObservationsAppended.WithLabelValues(obs.Type.String()).Inc()
	}
	recordDuplicates(candidates, inserted)
	metrics.AppendDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("append",
		zap.Int("updates", len(updates)),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("new_objects", result.NewObjects),
		zap.Int("new_entities", result.NewEntities),
		zap.Int("versions", result.Versions),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// entityID resolves the key of an update: explicit id, then extraction,
// then uuid.Nil.
func (s *Store) entityID(u model.Update) uuid.UUID {
	if u.EntityID.Valid {
		return u.EntityID.UUID
	}
	if s.extract != nil {
		if id, ok := s.extract(u.Type, u.Data); ok {
			return id
		}
	}
	return uuid.Nil
}

// insertObservations writes index rows and returns the ones actually inserted.
func insertObservations(ctx context.Context, tx *sqlx.Tx, candidates []model.Observation) ([]model.Observation, error) {
	insert := tx.Rebind(`
		INSERT INTO observations
		(observation_id, type, source_id, timestamp, entity_id, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)

	inserted := make([]model.Observation, 0, len(candidates))
	for _, obs := range candidates {
		res, err := tx.ExecContext(ctx, insert,
			querysql.IDParam(obs.ID),
			int16(obs.Type),
			querysql.IDParam(obs.SourceID),
			querysql.Nanos(obs.Timestamp),
			querysql.IDParam(obs.EntityID),
			obs.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert observation: rows affected: %w", err)
		}
		if n > 0 {
			inserted = append(inserted, obs)
		}
	}
	return inserted, nil
}

// registerEntities adds unseen keys to the entity registry and returns how
// many were new.
func registerEntities(ctx context.Context, tx *sqlx.Tx, keys []model.Key, touched map[model.Key][]model.Observation) (int, error) {
	insert := tx.Rebind(`
		INSERT INTO entities (type, entity_id, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	lower := tx.Rebind(`
		UPDATE entities SET first_seen = ?
		WHERE type = ? AND entity_id = ? AND first_seen > ?
	`)

	added := 0
	for _, key := range keys {
		first := slices.MinFunc(touched[key], func(a, b model.Observation) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		res, err := tx.ExecContext(ctx, insert, int16(key.Type), querysql.IDParam(key.EntityID), querysql.Nanos(first.Timestamp))
		if err != nil {
			return 0, fmt.Errorf("register entity %s %s: %w", key.Type, key.EntityID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("register entity: rows affected: %w", err)
		}
		if n > 0 {
			added++
			continue
		}

		// Known key: an out-of-order arrival may move first_seen earlier.
		if _, err := tx.ExecContext(ctx, lower, querysql.Nanos(first.Timestamp),
			int16(key.Type), querysql.IDParam(key.EntityID), querysql.Nanos(first.Timestamp)); err != nil {
			return 0, fmt.Errorf("update first seen %s %s: %w", key.Type, key.EntityID, err)
		}
	}
	return added, nil
}

func groupByKey(observations []model.Observation) map[model.Key][]model.Observation {
	groups := make(map[model.Key][]model.Observation)
	for _, obs := range observations {
		groups[obs.Key()] = append(groups[obs.Key()], obs)
	}
	return groups
}

// sortedKeys orders keys by type then entity id bytes, the order in which
// locks are taken.
func sortedKeys[V any](m map[model.Key]V) []model.Key {
	keys := make([]model.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b model.Key) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return bytes.Compare(a.EntityID[:], b.EntityID[:])
}

func recordDuplicates(candidates, inserted []model.Observation) {
	if len(candidates) == len(inserted) {
		return
	}
	fresh := make(map[uuid.UUID]bool, len(inserted))
	for _, obs := range inserted {
		fresh[obs.ID] = true
	}
	for _, obs := range candidates {
		if !fresh[obs.ID] {
			metrics.ObservationsDuplicate.WithLabelValues(obs.Type.String()).Inc()
		}
	}
}
