package store

import (
	_ "embed"
	"hash/fnv"
	"strings"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/chronicle/internal/model"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// dialect captures what differs between backing engines. Query text is shared.
type dialect struct {
	name   string
	schema string

	// pragmas run once per connection; SQLite only.
	pragmas []string

	// singleWriter limits the pool to one connection.
	singleWriter bool

	// keyLockSQL, when set, takes a transaction-scoped lock on a version key.
	keyLockSQL string
}

var sqliteDialect = &dialect{
	name:   "sqlite",
	schema: sqliteSchema,
	pragmas: []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	},
	singleWriter: true,
}

var postgresDialect = &dialect{
	name:       "postgres",
	schema:     postgresSchema,
	keyLockSQL: "SELECT pg_advisory_xact_lock(?, ?)",
}

// dialects maps database/sql driver names to dialects.
var dialects = map[string]*dialect{
	"sqlite3":  sqliteDialect, // github.com/mattn/go-sqlite3
	"sqlite":   sqliteDialect, // modernc.org/sqlite
	"pgx":      postgresDialect,
	"postgres": postgresDialect, // github.com/lib/pq
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{"sqlite3", "sqlite", "pgx", "postgres"}
}

// statements splits a schema script into individual statements.
func (d *dialect) statements() []string {
	var out []string
	for _, stmt := range strings.Split(stripComments(d.schema), ";") {
		if body := strings.TrimSpace(stmt); body != "" {
			out = append(out, body)
		}
	}
	return out
}

// stripComments drops whole-line "--" comments.
func stripComments(script string) string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// lockArgs folds a version key into the two int4 arguments of
// pg_advisory_xact_lock. Collisions only over-serialize.
func lockArgs(key model.Key) (int32, int32) {
	h := fnv.New32a()
	h.Write(key.EntityID[:])
	return int32(key.Type), int32(h.Sum32())
}
