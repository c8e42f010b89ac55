package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	logx "planwise/pkg/logx"
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is the TimeLogStore and DedupStore. Safe for concurrent use.
type DB struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
	closed  atomic.Bool

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*DB, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		d = dialectSQLite
		db, err = openSQLite(ctx, cfg)
	case "postgres", "postgresql", "pq":
		d = dialectPostgres
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	s := &DB{db: db, dialect: d, log: log.With(logx.String("dialect", d.String())), pruneEvery: 500}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply %s schema: %w", d, err)
	}
	s.log.Info("storage ready")
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema_" + s.dialect.String() + ".sql")
	if err != nil {
		return err
	}
	// No args: both drivers run multi-statement scripts this way.
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *DB) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity; used by the health endpoint.
func (s *DB) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Stats exposes the connection pool counters.
func (s *DB) Stats() sql.DBStats {
	if s == nil {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

func (s *DB) ready() error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// rebind rewrites '?' placeholders to $n for postgres.
func (s *DB) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
