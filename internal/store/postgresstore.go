package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultSessionTable = "oauth_session"

// postgresOpTimeout bounds every store operation so a hung database cannot
// stall a login indefinitely.
const postgresOpTimeout = 5 * time.Second

// PostgresStoreConfig captures the settings required to open a
// Postgres-backed session store.
type PostgresStoreConfig struct {
	DSN   string
	Table string
}

// PostgresStore persists session entries in a single key/value table so the
// session can be shared between hosts or survive local wipes.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore connects to PostgreSQL and ensures the session table
// exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultSessionTable
	}
	if !isSafeIdentifier(table) {
		return nil, fmt.Errorf("postgres store: invalid table name %q", table)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ensure table: %w", err)
	}

	return &PostgresStore{db: db, table: table}, nil
}

// Get returns the value stored under key. Lookup failures are logged and
// reported as absence so a broken backend degrades to an unauthenticated
// session instead of wedging the manager.
func (s *PostgresStore) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOpTimeout)
	defer cancel()

	var value string
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		log.Warnf("postgres store: get %s failed: %v", key, err)
		return "", false
	}
	return value, true
}

// Set upserts value under key.
func (s *PostgresStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOpTimeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres store: set %s failed: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *PostgresStore) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOpTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("postgres store: remove %s failed: %w", key, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isSafeIdentifier accepts table names that can be interpolated into DDL
// without quoting hazards.
func isSafeIdentifier(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return name != "" && (name[0] < '0' || name[0] > '9')
}
