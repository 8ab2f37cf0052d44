package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
)

// existenceChunk bounds the IN list of one existence check, well under
// SQLite's host parameter limit.
const existenceChunk = 500

// PutResult reports the outcome of writing one object.
type PutResult struct {
	Hash     payload.Hash `json:"hash"`
	Inserted bool         `json:"inserted"`
}

// pendingObject is a payload already serialized for hashing and storage.
type pendingObject struct {
	hash      payload.Hash
	canonical []byte
}

func newPendingObject(v payload.Value) pendingObject {
	canonical := payload.Canonical(v)
	return pendingObject{hash: payload.HashBytes(canonical), canonical: canonical}
}

// objectRow is the persisted shape of an object.
type objectRow struct {
	Hash     payload.Hash `db:"hash"`
	Encoding int          `db:"encoding"`
	Data     []byte       `db:"data"`
}

// PutObjects writes a batch of objects, skipping those already stored.
// A zero Hash is computed from Data; a non-zero Hash must match it.
// Concurrent writers racing on the same new hash both succeed and exactly one
// reports Inserted.
func (s *Store) PutObjects(ctx context.Context, objects []model.Object) ([]PutResult, error) {
	pending := make([]pendingObject, len(objects))
	for i, obj := range objects {
		if err := payload.CheckFinite(obj.Data); err != nil {
			return nil, fmt.Errorf("put objects: object %d: %w: %v", i, ErrInvalidUpdate, err)
		}
		p := newPendingObject(obj.Data)
		if !obj.Hash.IsZero() && obj.Hash != p.hash {
			return nil, fmt.Errorf("put objects: %w: hash %s does not match payload (%s)", ErrInvalidUpdate, obj.Hash, p.hash)
		}
		pending[i] = p
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put objects: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	inserted, err := s.putObjects(ctx, tx, pending)
	if err != nil {
		return nil, fmt.Errorf("put objects: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put objects: commit: %w", err)
	}
	s.rememberPending(pending)

	results := make([]PutResult, len(pending))
	for i, p := range pending {
		// Only the first occurrence of a hash within the batch counts as inserted.
		results[i] = PutResult{Hash: p.hash, Inserted: inserted[p.hash]}
		delete(inserted, p.hash)
	}
	return results, nil
}

// putObjects writes the objects not yet durable and returns the hashes this
// call inserted. The known-hash cache is consulted but not updated; callers
// remember hashes only after commit.
func (s *Store) putObjects(ctx context.Context, tx *sqlx.Tx, pending []pendingObject) (map[payload.Hash]bool, error) {
	candidates := make([]pendingObject, 0, len(pending))
	seen := make(map[payload.Hash]bool, len(pending))
	for _, p := range pending {
		if seen[p.hash] {
			continue
		}
		seen[p.hash] = true
		if s.isKnown(p.hash) {
			continue
		}
		candidates = append(candidates, p)
	}

	existing, err := existingHashes(ctx, tx, candidates)
	if err != nil {
		return nil, err
	}

	insert := tx.Rebind(`
		INSERT INTO objects (hash, encoding, data)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`)

	inserted := make(map[payload.Hash]bool)
	for _, p := range candidates {
		if existing[p.hash] {
			continue
		}
		encoding, data := s.codec.encode(p.canonical)
		res, err := tx.ExecContext(ctx, insert, p.hash, encoding, data)
		if err != nil {
			return nil, fmt.Errorf("insert object %s: %w", p.hash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert object %s: rows affected: %w", p.hash, err)
		}
		// 0 rows means a concurrent writer stored it first.
		if n > 0 {
			inserted[p.hash] = true
		}
	}

	metrics.ObjectsInserted.Add(float64(len(inserted)))
	return inserted, nil
}

// existingHashes checks which candidate hashes are already stored.
func existingHashes(ctx context.Context, tx *sqlx.Tx, candidates []pendingObject) (map[payload.Hash]bool, error) {
	existing := make(map[payload.Hash]bool)
	for start := 0; start < len(candidates); start += existenceChunk {
		end := min(start+existenceChunk, len(candidates))

		keys := make([][]byte, 0, end-start)
		for _, p := range candidates[start:end] {
			keys = append(keys, p.hash[:])
		}

		q, args, err := sqlx.In(`SELECT hash FROM objects WHERE hash IN (?)`, keys)
		if err != nil {
			return nil, fmt.Errorf("existence check: %w", err)
		}

		var found []payload.Hash
		if err := tx.SelectContext(ctx, &found, tx.Rebind(q), args...); err != nil {
			return nil, fmt.Errorf("existence check: %w", err)
		}
		for _, h := range found {
			existing[h] = true
		}
	}
	return existing, nil
}

func (s *Store) rememberPending(pending []pendingObject) {
	hashes := make([]payload.Hash, len(pending))
	for i, p := range pending {
		hashes[i] = p.hash
	}
	s.remember(hashes)
}

// Object returns the payload stored under h, or ErrNotFound.
func (s *Store) Object(ctx context.Context, h payload.Hash) (model.Object, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT hash, encoding, data FROM objects WHERE hash = ?`), h)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Object{}, fmt.Errorf("object %s: %w", h, ErrNotFound)
	}
	if err != nil {
		return model.Object{}, fmt.Errorf("object %s: %w", h, err)
	}

	data, err := s.codec.decode(row.Encoding, row.Data)
	if err != nil {
		return model.Object{}, fmt.Errorf("object %s: %w", h, err)
	}
	return model.Object{Hash: row.Hash, Data: data}, nil
}

// Objects returns the stored payloads for hashes. Missing hashes are absent
// from the result.
func (s *Store) Objects(ctx context.Context, hashes []payload.Hash) (map[payload.Hash]payload.Value, error) {
	out := make(map[payload.Hash]payload.Value, len(hashes))
	for start := 0; start < len(hashes); start += existenceChunk {
		end := min(start+existenceChunk, len(hashes))

		keys := make([][]byte, 0, end-start)
		for i := start; i < end; i++ {
			keys = append(keys, hashes[i][:])
		}

		q, args, err := sqlx.In(`SELECT hash, encoding, data FROM objects WHERE hash IN (?)`, keys)
		if err != nil {
			return nil, fmt.Errorf("objects: %w", err)
		}

		var rows []objectRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
			return nil, fmt.Errorf("objects: %w", err)
		}
		for _, row := range rows {
			data, err := s.codec.decode(row.Encoding, row.Data)
			if err != nil {
				return nil, fmt.Errorf("objects: %s: %w", row.Hash, err)
			}
			out[row.Hash] = data
		}
	}
	return out, nil
}
