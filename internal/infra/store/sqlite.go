package store

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// SQLite stores entries in the kv table of a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at path and migrates it.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// go-sqlite3 serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	zlog.Info().Msgf("store: sqlite ready: path=%s", path)
	return &SQLite{db: db, now: time.Now}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "sqlite driver")
	}

	d, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "iofs source")
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return errors.Wrap(err, "migrate init")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if exp := expiry(s.now(), ttl); !exp.IsZero() {
		expiresAt = sql.NullInt64{Int64: exp.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv(key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	return errors.Wrap(err, "failed to write entry")
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read entry")
	}
	return value, nil
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano(),
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to read entry")
	}
	return n > 0, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrap(err, "failed to delete entry")
}

// Keys prunes expired rows and returns the rest in lexical order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	now := s.now().UnixNano()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, now); err != nil {
		return nil, errors.Wrap(err, "failed to prune expired entries")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "failed to scan key")
		}
		keys = append(keys, k)
	}
	return keys, errors.Wrap(rows.Err(), "failed to list keys")
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	return errors.Wrap(err, "failed to clear entries")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
