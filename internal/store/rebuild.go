package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/querysql"
)

// RebuildReport summarizes a RebuildAll run. Failed entities are skipped,
// never fatal.
type RebuildReport struct {
	Type     model.EntityType `json:"type"`
	Entities int              `json:"entities"`
	Rebuilt  int              `json:"rebuilt"`
	Versions int              `json:"versions"`
	Failed   []*RebuildError  `json:"failed,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// RebuildEntity recomputes the versions of one key from its log and replaces
// them atomically. Running it twice with no appends in between writes the
// same rows. Returns the number of versions.
func (s *Store) RebuildEntity(ctx context.Context, t model.EntityType, id uuid.UUID) (int, error) {
	key := model.Key{Type: t, EntityID: id}
	start := time.Now()

	unlock := s.locks.Lock(key)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("rebuild entity: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := s.lockKey(ctx, tx, key); err != nil {
		return 0, fmt.Errorf("rebuild entity: %w", err)
	}

	n, err := s.rebuildKeyTx(ctx, tx, key, pathRebuild)
	if err != nil {
		return 0, fmt.Errorf("rebuild entity %s %s: %w", t, id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rebuild entity: commit: %w", err)
	}

	metrics.RebuildDuration.WithLabelValues("entity").Observe(time.Since(start).Seconds())
	s.logger.Debug("rebuilt entity",
		zap.Stringer("type", t),
		zap.Stringer("entity_id", id),
		zap.Int("versions", n),
		zap.Duration("duration", time.Since(start)))

	return n, nil
}

// RebuildAll rebuilds every registered entity of type t, each in its own
// transaction. A failing entity is logged, recorded in the report and
// skipped. The returned error is reserved for enumeration failure and
// cancellation.
func (s *Store) RebuildAll(ctx context.Context, t model.EntityType) (RebuildReport, error) {
	report := RebuildReport{Type: t}
	start := time.Now()

	ids, err := s.EntityIDs(ctx, t)
	if err != nil {
		return report, fmt.Errorf("rebuild all: %w", err)
	}
	report.Entities = len(ids)

	s.logger.Info("rebuild started",
		zap.Stringer("type", t),
		zap.Int("entities", len(ids)),
		zap.Int("workers", s.rebuildWorkers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.rebuildWorkers)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			n, err := s.RebuildEntity(gctx, t, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.RebuildEntities.WithLabelValues(t.String(), "error").Inc()
				s.logger.Warn("rebuild entity failed, skipping",
					zap.Stringer("type", t),
					zap.Stringer("entity_id", id),
					zap.Error(err))

				mu.Lock()
				report.Failed = append(report.Failed, &RebuildError{Type: t, EntityID: id, Err: err})
				mu.Unlock()
				return nil
			}

			metrics.RebuildEntities.WithLabelValues(t.String(), "ok").Inc()
			mu.Lock()
			report.Rebuilt++
			report.Versions += n
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	report.Duration = time.Since(start)
	metrics.RebuildDuration.WithLabelValues("all").Observe(report.Duration.Seconds())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, fmt.Errorf("rebuild all %s: %w", t, err)
	}

	s.logger.Info("rebuild finished",
		zap.Stringer("type", t),
		zap.Int("entities", report.Entities),
		zap.Int("rebuilt", report.Rebuilt),
		zap.Int("failed", len(report.Failed)),
		zap.Int("versions", report.Versions),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// RebuildTypes runs RebuildAll for each type in turn and stops at the first
// fatal error.
func (s *Store) RebuildTypes(ctx context.Context, types ...model.EntityType) ([]RebuildReport, error) {
	reports := make([]RebuildReport, 0, len(types))
	for _, t := range types {
		report, err := s.RebuildAll(ctx, t)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// EntityIDs lists every registered entity of type t in id order.
func (s *Store) EntityIDs(ctx context.Context, t model.EntityType) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT entity_id FROM entities
		WHERE type = ?
		ORDER BY entity_id ASC
	`), int16(t))
	if err != nil {
		return nil, fmt.Errorf("entity ids %s: %w", t, err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

// FirstSeen returns when a key first appeared in the log, or ErrNotFound.
func (s *Store) FirstSeen(ctx context.Context, t model.EntityType, id uuid.UUID) (time.Time, error) {
	var nanos []int64
	err := s.db.SelectContext(ctx, &nanos, s.db.Rebind(`
		SELECT first_seen FROM entities WHERE type = ? AND entity_id = ?
	`), int16(t), querysql.IDParam(id))
	if err != nil {
		return time.Time{}, fmt.Errorf("first seen: %w", err)
	}
	if len(nanos) == 0 {
		return time.Time{}, fmt.Errorf("first seen %s %s: %w", t, id, ErrNotFound)
	}
	return querysql.FromNanos(nanos[0]), nil
}
