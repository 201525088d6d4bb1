package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps one JSON history document per key with an expires_at
// column refreshed on every write. Expired rows are treated as absent and
// lazily deleted, which matches TTL key-value semantics on a relational
// store.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration

	schemaOnce sync.Once
	schemaErr  error

	failures atomic.Uint64
}

func NewPostgresStore(dsn string, ttl time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PostgresStore{db: db, ttl: ttl}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
  key TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  expires_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_expires_at ON conversations (expires_at);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Load(ctx context.Context, appID int64) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(ctx); err != nil {
		s.degrade(appID, err)
		return nil, nil
	}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM conversations WHERE key = $1 AND expires_at > NOW()`,
		Key(appID)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.degrade(appID, err)
		return nil, nil
	}
	var history []Entry
	if err := json.Unmarshal([]byte(payload), &history); err != nil {
		s.degrade(appID, err)
		return nil, nil
	}
	return history, nil
}

func (s *PostgresStore) Replace(ctx context.Context, appID int64, entries []Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversations (key, payload, expires_at)
VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
ON CONFLICT (key)
DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		Key(appID), string(raw), int64(s.ttl.Seconds()))
	return err
}

func (s *PostgresStore) Clear(ctx context.Context, appID int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE key = $1`, Key(appID))
	return err
}

func (s *PostgresStore) LoadFailures() uint64 { return s.failures.Load() }

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) degrade(appID int64, err error) {
	s.failures.Add(1)
	log.Printf("conversation: degraded to empty history for app %d: %v", appID, err)
}

// NewFromEnv picks the postgres backend when a DSN is configured and it
// answers a ping, falling back to the disk backend otherwise.
func NewFromEnv(dsn, diskRoot string, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(dsn) != "" {
		s, err := NewPostgresStore(dsn, ttl)
		if err == nil {
			return s, nil
		}
		log.Printf("conversation: postgres unavailable, using disk store: %v", err)
	}
	return NewDiskStore(DiskConfig{Root: diskRoot, TTL: ttl})
}
