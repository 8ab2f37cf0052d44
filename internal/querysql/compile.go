package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/query"
)

// ObservationColumns is the select list of CompileObservations, in scan order.
const ObservationColumns = "o.observation_id, o.type, o.source_id, o.timestamp, o.entity_id, o.hash, obj.encoding, obj.data"

// VersionColumns is the select list of CompileVersions, in scan order.
const VersionColumns = "v.type, v.entity_id, v.version, v.hash, v.valid_from, v.valid_to, v.last_seen, v.observations, obj.encoding, obj.data"

// SQLCompiler turns normalized queries into parameterized SQL with '?'
// placeholders. Callers rebind for their driver.
//
// Every query ends in a total ORDER BY and fetches Count+1 rows so the caller
// can tell whether another page exists.
type SQLCompiler struct{}

// NewSQLCompiler creates a compiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// CompileObservations compiles an observation scan.
func (c *SQLCompiler) CompileObservations(q query.ObservationQuery) (string, []any, error) {
	if q.Count <= 0 {
		return "", nil, fmt.Errorf("compile observations: query not normalized")
	}

	var w where
	if len(q.Types) > 0 {
		w.in("o.type", typeParams(q.Types))
	}
	if len(q.IDs) > 0 {
		w.in("o.entity_id", idParams(q.IDs))
	}
	if len(q.Sources) > 0 {
		w.in("o.source_id", idParams(q.Sources))
	}
	w.bounds("o.timestamp", q.Before, q.After)
	if q.Page != nil {
		w.keyset("o.timestamp", "o.observation_id", q.Order, Nanos(q.Page.Timestamp), IDParam(q.Page.ID))
	}

	dir := direction(q.Order)
	sql := fmt.Sprintf(
		"SELECT %s FROM observations o JOIN objects obj ON obj.hash = o.hash%s ORDER BY o.timestamp %s, o.observation_id %s LIMIT %d",
		ObservationColumns, w.clause(), dir, dir, q.Count+1)

	return sql, w.params, nil
}

// CompileVersions compiles a version range scan or snapshot.
func (c *SQLCompiler) CompileVersions(q query.VersionQuery) (string, []any, error) {
	if q.Count <= 0 {
		return "", nil, fmt.Errorf("compile versions: query not normalized")
	}

	var w where
	w.eq("v.type", int16(q.Type))
	if len(q.IDs) > 0 {
		w.in("v.entity_id", idParams(q.IDs))
	}

	if q.Snapshot() {
		if q.At != nil {
			at := Nanos(*q.At)
			w.add("v.valid_from <= ?", at)
			w.add("(v.valid_to IS NULL OR v.valid_to > ?)", at)
		} else {
			w.add("v.valid_to IS NULL")
		}
		if q.Page != nil {
			w.add("v.entity_id > ?", IDParam(q.Page.ID))
		}

		sql := fmt.Sprintf(
			"SELECT %s FROM versions v JOIN objects obj ON obj.hash = v.hash%s ORDER BY v.entity_id ASC LIMIT %d",
			VersionColumns, w.clause(), q.Count+1)
		return sql, w.params, nil
	}

	w.bounds("v.valid_from", q.Before, q.After)
	if q.Page != nil {
		w.keyset("v.valid_from", "v.entity_id", q.Order, Nanos(q.Page.Timestamp), IDParam(q.Page.ID))
	}

	dir := direction(q.Order)
	sql := fmt.Sprintf(
		"SELECT %s FROM versions v JOIN objects obj ON obj.hash = v.hash%s ORDER BY v.valid_from %s, v.entity_id %s, v.version %s LIMIT %d",
		VersionColumns, w.clause(), dir, dir, dir, q.Count+1)

	return sql, w.params, nil
}

// CompileVersionGroup selects the versions of one entity starting at
// validFrom whose number lies past after in q's order. A range page that
// would otherwise split such a group is completed with it.
func (c *SQLCompiler) CompileVersionGroup(q query.VersionQuery, validFrom time.Time, id uuid.UUID, after int) (string, []any, error) {
	if q.Snapshot() {
		return "", nil, fmt.Errorf("compile version group: snapshot queries have no groups")
	}

	var w where
	w.eq("v.type", int16(q.Type))
	w.eq("v.valid_from", Nanos(validFrom))
	w.eq("v.entity_id", IDParam(id))
	if q.Order == query.Desc {
		w.add("v.version < ?", after)
	} else {
		w.add("v.version > ?", after)
	}

	sql := fmt.Sprintf(
		"SELECT %s FROM versions v JOIN objects obj ON obj.hash = v.hash%s ORDER BY v.version %s",
		VersionColumns, w.clause(), direction(q.Order))
	return sql, w.params, nil
}

// where accumulates AND-ed predicates and their parameters.
// Values are never interpolated.
type where struct {
	parts  []string
	params []any
}

func (w *where) add(sql string, params ...any) {
	w.parts = append(w.parts, sql)
	w.params = append(w.params, params...)
}

func (w *where) eq(column string, value any) {
	w.add(column+" = ?", value)
}

func (w *where) in(column string, values []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	w.add(fmt.Sprintf("%s IN (%s)", column, placeholders), values...)
}

// bounds adds strict before/after limits.
func (w *where) bounds(column string, before, after *time.Time) {
	if before != nil {
		w.add(column+" < ?", Nanos(*before))
	}
	if after != nil {
		w.add(column+" > ?", Nanos(*after))
	}
}

// keyset adds the two-column row comparison that resumes a scan after the
// cursor position.
func (w *where) keyset(sortCol, tieCol string, order query.Order, ts int64, tie []byte) {
	op := ">"
	if order == query.Desc {
		op = "<"
	}
	w.add(fmt.Sprintf("(%s, %s) %s (?, ?)", sortCol, tieCol, op), ts, tie)
}

func (w *where) clause() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func direction(o query.Order) string {
	if o == query.Desc {
		return "DESC"
	}
	return "ASC"
}

// Nanos is the storage encoding of a timestamp.
func Nanos(t time.Time) int64 {
	return t.UnixNano()
}

// FromNanos decodes a stored timestamp.
func FromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// IDParam is the storage encoding of a UUID.
func IDParam(id uuid.UUID) []byte {
	return id[:]
}

func idParams(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = IDParam(id)
	}
	return out
}

func typeParams(types []model.EntityType) []any {
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = int16(t)
	}
	return out
}
