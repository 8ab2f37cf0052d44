package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/query"
	"github.com/roach88/chronicle/internal/querysql"
)

// Schema version tracking (SQLite user_version):
// 1 - objects, observations, entities, versions
const currentSchemaVersion = 1

// Store is the durable home of objects, observations and versions.
// It is safe for concurrent use.
type Store struct {
	db       *sqlx.DB
	dialect  *dialect
	codec    *objectCodec
	compiler *querysql.SQLCompiler
	locks    *keyLocks

	known            KnownHashes
	ids              IDGenerator
	extract          model.EntityExtractor
	logger           *zap.Logger
	limits           query.Limits
	maintainVersions bool
	rebuildWorkers   int
	maxOpenConns     int
	compression      Compression
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKnownHashes injects a known-hash cache. nil disables caching.
func WithKnownHashes(k KnownHashes) Option {
	return func(s *Store) { s.known = k }
}

// WithIDGenerator replaces the UUIDv7 observation id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithEntityExtractor replaces model.ExtractEntityID.
func WithEntityExtractor(fn model.EntityExtractor) Option {
	return func(s *Store) { s.extract = fn }
}

// WithLimits sets page size defaults and maxima.
func WithLimits(l query.Limits) Option {
	return func(s *Store) { s.limits = l }
}

// WithCompression selects the object payload encoding for new writes.
func WithCompression(c Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithVersionMaintenance toggles updating versions inside Append. When off,
// versions only change through Rebuild.
func WithVersionMaintenance(on bool) Option {
	return func(s *Store) { s.maintainVersions = on }
}

// WithRebuildWorkers bounds RebuildAll concurrency. 1 rebuilds sequentially.
func WithRebuildWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.rebuildWorkers = n
		}
	}
}

// WithMaxOpenConns sizes the pool for multi-writer engines. SQLite always
// uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) { s.maxOpenConns = n }
}

// Open creates or opens a SQLite database at path using the cgo driver.
func Open(path string, opts ...Option) (*Store, error) {
	return OpenDriver(context.Background(), "sqlite3", path, opts...)
}

// OpenDriver opens a database through any supported driver and applies the
// schema. It is idempotent.
//
// SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - Foreign key enforcement
func OpenDriver(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q: must be one of %v", driver, Drivers())
	}

	s := &Store{
		dialect:          d,
		compiler:         querysql.NewSQLCompiler(),
		locks:            newKeyLocks(),
		ids:              UUIDv7Generator{},
		extract:          model.ExtractEntityID,
		logger:           zap.NewNop(),
		limits:           query.DefaultLimits,
		maintainVersions: true,
		rebuildWorkers:   1,
		maxOpenConns:     8,
		compression:      CompressionZstd,
	}
	for _, opt := range opts {
		opt(s)
	}

	codec, err := newObjectCodec(s.compression)
	if err != nil {
		return nil, err
	}
	s.codec = codec

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		codec.close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.singleWriter {
		// One connection: pragmas stick and writers never hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if s.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		codec.close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db
	if err := s.applyPragmas(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := s.applySchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.logger.Info("store opened",
		zap.String("driver", driver),
		zap.String("dialect", d.name),
		zap.String("compression", string(s.compression)),
		zap.Bool("maintain_versions", s.maintainVersions))

	return s, nil
}

// Close releases the database and codec resources. Safe on a nil db.
func (s *Store) Close() error {
	if s.codec != nil {
		s.codec.close()
		s.codec = nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle. Prefer Store methods.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns "sqlite" or "postgres".
func (s *Store) Dialect() string {
	return s.dialect.name
}

// Limits returns the page size limits in effect.
func (s *Store) Limits() query.Limits {
	return s.limits
}

func (s *Store) applyPragmas(ctx context.Context) error {
	for _, pragma := range s.dialect.pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range s.dialect.statements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	if s.dialect != sqliteDialect {
		return nil
	}
	return s.runMigrations(ctx)
}

// runMigrations applies incremental migrations based on user_version.
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	// No migrations yet; version 1 is the initial schema.
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// SchemaVersion reports the SQLite user_version, or currentSchemaVersion for
// engines without one.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s.dialect != sqliteDialect {
		return currentSchemaVersion, nil
	}
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
