package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/querysql"
	"github.com/roach88/chronicle/internal/versioning"
)

// Write paths recorded in metrics.
const (
	pathIncremental = "incremental"
	pathRebuild     = "rebuild"
)

// versionRow is the persisted shape of a version.
type versionRow struct {
	Type         int16         `db:"type"`
	EntityID     uuid.UUID     `db:"entity_id"`
	Number       int           `db:"version"`
	Hash         payload.Hash  `db:"hash"`
	ValidFrom    int64         `db:"valid_from"`
	ValidTo      sql.NullInt64 `db:"valid_to"`
	LastSeen     int64         `db:"last_seen"`
	Observations int           `db:"observations"`
}

func (r versionRow) version() model.Version {
	v := model.Version{
		Type:         model.EntityType(r.Type),
		EntityID:     r.EntityID,
		Number:       r.Number,
		Hash:         r.Hash,
		ValidFrom:    querysql.FromNanos(r.ValidFrom),
		LastSeen:     querysql.FromNanos(r.LastSeen),
		Observations: r.Observations,
	}
	if r.ValidTo.Valid {
		to := querysql.FromNanos(r.ValidTo.Int64)
		v.ValidTo = &to
	}
	return v
}

func validTo(v model.Version) sql.NullInt64 {
	if v.ValidTo == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: querysql.Nanos(*v.ValidTo), Valid: true}
}

const versionSelect = `
	SELECT type, entity_id, version, hash, valid_from, valid_to, last_seen, observations
	FROM versions
`

// EntityVersions returns the stored versions of one key in version order.
// An unknown key yields an empty slice.
func (s *Store) EntityVersions(ctx context.Context, t model.EntityType, id uuid.UUID) ([]model.Version, error) {
	var rows []versionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(versionSelect+`
		WHERE type = ? AND entity_id = ?
		ORDER BY version ASC
	`), int16(t), querysql.IDParam(id))
	if err != nil {
		return nil, fmt.Errorf("entity versions: %w", err)
	}

	versions := make([]model.Version, len(rows))
	for i, row := range rows {
		versions[i] = row.version()
	}
	return versions, nil
}

// DeriveVersions computes the versions of one key straight from the log
// without reading or writing the version table.
func (s *Store) DeriveVersions(ctx context.Context, t model.EntityType, id uuid.UUID) ([]model.Version, error) {
	observations, err := loadKeyObservations(ctx, s.db, model.Key{Type: t, EntityID: id})
	if err != nil {
		return nil, fmt.Errorf("derive versions: %w", err)
	}
	return versioning.Derive(observations), nil
}

// KeyObservations returns the log rows of one key in (timestamp, id) order.
func (s *Store) KeyObservations(ctx context.Context, t model.EntityType, id uuid.UUID) ([]model.Observation, error) {
	observations, err := loadKeyObservations(ctx, s.db, model.Key{Type: t, EntityID: id})
	if err != nil {
		return nil, fmt.Errorf("key observations: %w", err)
	}
	return observations, nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func loadKeyObservations(ctx context.Context, q queryer, key model.Key) ([]model.Observation, error) {
	var rows []observationRow
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(`
		SELECT observation_id, type, source_id, timestamp, entity_id, hash
		FROM observations
		WHERE type = ? AND entity_id = ?
		ORDER BY timestamp ASC, observation_id ASC
	`), int16(key.Type), querysql.IDParam(key.EntityID))
	if err != nil {
		return nil, fmt.Errorf("load observations %s %s: %w", key.Type, key.EntityID, err)
	}

	observations := make([]model.Observation, len(rows))
	for i, row := range rows {
		observations[i] = row.observation()
	}
	return observations, nil
}

// maintainKeys brings the versions of every touched key in line with the log.
// fresh holds the observations this transaction inserted per key. Returns the
// number of version rows written.
func (s *Store) maintainKeys(ctx context.Context, tx *sqlx.Tx, keys []model.Key, fresh map[model.Key][]model.Observation) (int, error) {
	written := 0
	for _, key := range keys {
		if err := s.lockKey(ctx, tx, key); err != nil {
			return written, err
		}

		n, err := s.maintainKey(ctx, tx, key, fresh[key])
		if err != nil {
			return written, fmt.Errorf("maintain versions %s %s: %w", key.Type, key.EntityID, err)
		}
		written += n
	}
	return written, nil
}

func (s *Store) maintainKey(ctx context.Context, tx *sqlx.Tx, key model.Key, fresh []model.Observation) (int, error) {
	current, ok, err := openVersion(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.rebuildKeyTx(ctx, tx, key, pathIncremental)
	}

	extendable, err := extendsOpenVersion(ctx, tx, current, fresh)
	if err != nil {
		return 0, err
	}
	if !extendable {
		return s.rebuildKeyTx(ctx, tx, key, pathIncremental)
	}

	sorted := sortObservations(fresh)
	changed := make([]model.Version, 0, 2)
	for _, obs := range sorted {
		updated, next := versioning.Advance(current, obs)
		if next == nil {
			current = updated
			continue
		}
		changed = append(changed, updated)
		current = *next
	}
	changed = append(changed, current)

	if err := upsertVersions(ctx, tx, changed); err != nil {
		return 0, err
	}
	metrics.VersionsWritten.WithLabelValues(key.Type.String(), pathIncremental).Add(float64(len(changed)))
	return len(changed), nil
}

// extendsOpenVersion reports whether fresh can be applied with Advance: all
// of it sorts strictly after the open version's last observation, and the
// log holds nothing else past that point.
func extendsOpenVersion(ctx context.Context, tx *sqlx.Tx, current model.Version, fresh []model.Observation) (bool, error) {
	for _, obs := range fresh {
		if !obs.Timestamp.After(current.LastSeen) {
			return false, nil
		}
	}

	var later int
	err := tx.GetContext(ctx, &later, tx.Rebind(`
		SELECT COUNT(*) FROM observations
		WHERE type = ? AND entity_id = ? AND timestamp > ?
	`), int16(current.Type), querysql.IDParam(current.EntityID), querysql.Nanos(current.LastSeen))
	if err != nil {
		return false, fmt.Errorf("count later observations: %w", err)
	}
	return later == len(fresh), nil
}

func openVersion(ctx context.Context, tx *sqlx.Tx, key model.Key) (model.Version, bool, error) {
	var row versionRow
	err := tx.GetContext(ctx, &row, tx.Rebind(versionSelect+`
		WHERE type = ? AND entity_id = ? AND valid_to IS NULL
	`), int16(key.Type), querysql.IDParam(key.EntityID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, false, nil
	}
	if err != nil {
		return model.Version{}, false, fmt.Errorf("open version: %w", err)
	}
	return row.version(), true, nil
}

// rebuildKeyTx replaces the versions of key with Derive over its full log.
func (s *Store) rebuildKeyTx(ctx context.Context, tx *sqlx.Tx, key model.Key, path string) (int, error) {
	observations, err := loadKeyObservations(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	versions := versioning.Derive(observations)

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM versions WHERE type = ? AND entity_id = ?`),
		int16(key.Type), querysql.IDParam(key.EntityID)); err != nil {
		return 0, fmt.Errorf("delete versions: %w", err)
	}
	if err := upsertVersions(ctx, tx, versions); err != nil {
		return 0, err
	}

	metrics.VersionsWritten.WithLabelValues(key.Type.String(), path).Add(float64(len(versions)))
	return len(versions), nil
}

func upsertVersions(ctx context.Context, tx *sqlx.Tx, versions []model.Version) error {
	upsert := tx.Rebind(`
		INSERT INTO versions
		(type, entity_id, version, hash, valid_from, valid_to, last_seen, observations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, entity_id, version) DO UPDATE SET
			hash = excluded.hash,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			last_seen = excluded.last_seen,
			observations = excluded.observations
	`)

	for _, v := range versions {
		_, err := tx.ExecContext(ctx, upsert,
			int16(v.Type),
			querysql.IDParam(v.EntityID),
			v.Number,
			v.Hash,
			querysql.Nanos(v.ValidFrom),
			validTo(v),
			querysql.Nanos(v.LastSeen),
			v.Observations,
		)
		if err != nil {
			return fmt.Errorf("write version %d: %w", v.Number, err)
		}
	}
	return nil
}

// lockKey takes the engine's transaction-scoped lock on key, if it has one.
func (s *Store) lockKey(ctx context.Context, tx *sqlx.Tx, key model.Key) error {
	if s.dialect.keyLockSQL == "" {
		return nil
	}
	typ, entity := lockArgs(key)
	if _, err := tx.ExecContext(ctx, tx.Rebind(s.dialect.keyLockSQL), typ, entity); err != nil {
		return fmt.Errorf("lock key %s %s: %w", key.Type, key.EntityID, err)
	}
	return nil
}

func sortObservations(observations []model.Observation) []model.Observation {
	sorted := slices.Clone(observations)
	slices.SortFunc(sorted, versioning.Compare)
	return sorted
}
