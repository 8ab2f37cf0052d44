package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/cursor"
	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/query"
	"github.com/roach88/chronicle/internal/querysql"
)

type observationViewRow struct {
	observationRow
	Encoding int    `db:"encoding"`
	Data     []byte `db:"data"`
}

type versionViewRow struct {
	versionRow
	Encoding int    `db:"encoding"`
	Data     []byte `db:"data"`
}

// Observations runs an observation scan and returns one page.
// Rows inserted while a client pages never reappear on later pages: the
// keyset predicate resumes strictly after the cursor.
func (s *Store) Observations(ctx context.Context, q query.ObservationQuery) (query.Page[model.ObservationView], error) {
	var page query.Page[model.ObservationView]
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("observations").Observe(time.Since(start).Seconds()) }()

	q, err := q.Normalize(s.limits)
	if err != nil {
		return page, err
	}
	sqlText, args, err := s.compiler.CompileObservations(q)
	if err != nil {
		return page, err
	}

	var rows []observationViewRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sqlText), args...); err != nil {
		return page, fmt.Errorf("observations: %w", err)
	}

	more := len(rows) > q.Count
	if more {
		rows = rows[:q.Count]
	}

	decoded := newPayloadCache(s.codec)
	page.Items = make([]model.ObservationView, len(rows))
	for i, row := range rows {
		data, err := decoded.get(row.Hash, row.Encoding, row.Data)
		if err != nil {
			return page, fmt.Errorf("observations: %w", err)
		}
		page.Items[i] = model.ObservationView{Observation: row.observation(), Data: data}
	}

	if more {
		last := page.Items[len(page.Items)-1]
		next := cursor.New(last.Timestamp, last.ID)
		page.Next = &next
	}
	return page, nil
}

// Versions runs a version range scan or snapshot and returns one page.
// An entity without history simply contributes no rows.
func (s *Store) Versions(ctx context.Context, q query.VersionQuery) (query.Page[model.VersionView], error) {
	var page query.Page[model.VersionView]
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("versions").Observe(time.Since(start).Seconds()) }()

	q, err := q.Normalize(s.limits)
	if err != nil {
		return page, err
	}
	sqlText, args, err := s.compiler.CompileVersions(q)
	if err != nil {
		return page, err
	}

	var rows []versionViewRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sqlText), args...); err != nil {
		return page, fmt.Errorf("versions: %w", err)
	}

	more := len(rows) > q.Count
	if more {
		if q.Snapshot() {
			rows = rows[:q.Count]
		} else if end := tieBoundary(rows, q.Count); end > 0 {
			rows = rows[:end]
		} else {
			rows, more, err = s.completeGroup(ctx, q, rows[:q.Count])
			if err != nil {
				return page, fmt.Errorf("versions: %w", err)
			}
		}
	}

	decoded := newPayloadCache(s.codec)
	page.Items = make([]model.VersionView, len(rows))
	for i, row := range rows {
		data, err := decoded.get(row.Hash, row.Encoding, row.Data)
		if err != nil {
			return page, fmt.Errorf("versions: %w", err)
		}
		page.Items[i] = model.VersionView{Version: row.version(), Data: data}
	}

	if more {
		last := page.Items[len(page.Items)-1]
		next := cursor.New(last.ValidFrom, last.EntityID)
		page.Next = &next
	}
	return page, nil
}

// tieBoundary returns how many of rows (count+1 of them) fit on a page
// without splitting versions that share the cursor key (valid_from,
// entity_id). Two hashes observed at one instant produce such a group. Zero
// means the whole page is one group.
func tieBoundary(rows []versionViewRow, count int) int {
	end := count
	lookahead := rows[count]
	for end > 0 && sameVersionKey(rows[end-1], lookahead) {
		end--
	}
	return end
}

// completeGroup extends a page made of a single (valid_from, entity_id) group
// with the rest of that group, so the next page can resume strictly after the
// key. It also reports whether anything follows the group.
func (s *Store) completeGroup(ctx context.Context, q query.VersionQuery, rows []versionViewRow) ([]versionViewRow, bool, error) {
	last := rows[len(rows)-1]
	validFrom := querysql.FromNanos(last.ValidFrom)

	sqlText, args, err := s.compiler.CompileVersionGroup(q, validFrom, last.EntityID, last.Number)
	if err != nil {
		return nil, false, err
	}
	var rest []versionViewRow
	if err := s.db.SelectContext(ctx, &rest, s.db.Rebind(sqlText), args...); err != nil {
		return nil, false, err
	}
	rows = append(rows, rest...)

	after := cursor.New(validFrom, last.EntityID)
	next := q
	next.Page = &after
	next.Count = 1
	sqlText, args, err = s.compiler.CompileVersions(next)
	if err != nil {
		return nil, false, err
	}
	var following []versionViewRow
	if err := s.db.SelectContext(ctx, &following, s.db.Rebind(sqlText), args...); err != nil {
		return nil, false, err
	}
	return rows, len(following) > 0, nil
}

func sameVersionKey(a, b versionViewRow) bool {
	return a.ValidFrom == b.ValidFrom && a.EntityID == b.EntityID
}

// payloadCache decodes each distinct object once per page.
type payloadCache struct {
	codec  *objectCodec
	values map[payload.Hash]payload.Value
}

func newPayloadCache(codec *objectCodec) *payloadCache {
	return &payloadCache{codec: codec, values: make(map[payload.Hash]payload.Value)}
}

func (c *payloadCache) get(h payload.Hash, encoding int, data []byte) (payload.Value, error) {
	if v, ok := c.values[h]; ok {
		return v, nil
	}
	v, err := c.codec.decode(encoding, data)
	if err != nil {
		return nil, fmt.Errorf("decode object %s: %w", h, err)
	}
	c.values[h] = v
	return v, nil
}
