package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS ctxbudget_sessions (
	key          TEXT PRIMARY KEY,
	metadata     JSONB NOT NULL DEFAULT '{}',
	compactions  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ctxbudget_messages (
	key   TEXT NOT NULL REFERENCES ctxbudget_sessions(key) ON DELETE CASCADE,
	seq   INTEGER NOT NULL,
	body  JSONB NOT NULL,
	PRIMARY KEY (key, seq)
);

CREATE TABLE IF NOT EXISTS ctxbudget_archives (
	id          UUID PRIMARY KEY,
	key         TEXT NOT NULL,
	body        BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS ctxbudget_archives_key_idx ON ctxbudget_archives (key, created_at);
`

// PGStore stores sessions in PostgreSQL. Each message is one row ordered by
// seq; archives hold zstd-compressed JSONL snapshots.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore connects to dsn and creates the tables if they are missing.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the session tables.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, key string) (*Session, error) {
	query := `
		SELECT metadata, compactions, created_at, updated_at
		FROM ctxbudget_sessions
		WHERE key = $1
	`
	sess := &Session{Key: key}
	var metadataJSON []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&metadataJSON, &sess.Compactions, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &sess.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}

	sess.Log, err = s.messages(ctx, s.pool, key)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PGStore) messages(ctx context.Context, q querier, key string) (schema.Log, error) {
	rows, err := q.Query(ctx, `SELECT body FROM ctxbudget_messages WHERE key = $1 ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var log schema.Log
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m, err := unmarshalMessage(body)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		log = append(log, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return log, nil
}

// upsertSession creates the session row if needed and locks it for the rest
// of the transaction.
func upsertSession(ctx context.Context, tx pgx.Tx, key string, compacted bool) error {
	bump := 0
	if compacted {
		bump = 1
	}
	query := `
		INSERT INTO ctxbudget_sessions (key, compactions)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET updated_at = NOW(), compactions = ctxbudget_sessions.compactions + $2
	`
	if _, err := tx.Exec(ctx, query, key, bump); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, key string, start int, log schema.Log) error {
	if len(log) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, m := range log {
		body, err := marshalMessage(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		batch.Queue(`INSERT INTO ctxbudget_messages (key, seq, body) VALUES ($1, $2, $3)`, key, start+i, body)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert messages: %w", err)
	}
	return nil
}

func (s *PGStore) Append(ctx context.Context, key string, msgs ...schema.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertSession(ctx, tx, key, false); err != nil {
			return err
		}
		var next int
		err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM ctxbudget_messages WHERE key = $1`, key).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		return insertMessages(ctx, tx, key, next, msgs)
	})
}

func (s *PGStore) Replace(ctx context.Context, key string, log schema.Log) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertSession(ctx, tx, key, true); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ctxbudget_messages WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		return insertMessages(ctx, tx, key, 0, log)
	})
}

func (s *PGStore) Rebase(ctx context.Context, key string, base int, log schema.Log) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertSession(ctx, tx, key, true); err != nil {
			return err
		}
		stored, err := s.messages(ctx, tx, key)
		if err != nil {
			return err
		}
		if len(stored) < base {
			return ErrConflict
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ctxbudget_messages WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		merged := make(schema.Log, 0, len(log)+len(stored)-base)
		merged = append(merged, log...)
		merged = append(merged, stored[base:]...)
		return insertMessages(ctx, tx, key, 0, merged)
	})
}

func (s *PGStore) Archive(ctx context.Context, key string, id uuid.UUID, log schema.Log) error {
	var buf bytes.Buffer
	now := time.Now()
	if err := compressLog(&buf, newMeta(&Session{Key: key, CreatedAt: now, UpdatedAt: now}), log); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ctxbudget_archives (id, key, body) VALUES ($1, $2, $3)`,
		id, key, buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to insert archive: %w", err)
	}
	return nil
}

func (s *PGStore) ReadArchive(ctx context.Context, key string, id uuid.UUID) (schema.Log, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM ctxbudget_archives WHERE id = $1 AND key = $2`, id, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	_, log, err := decompressLog(bytes.NewReader(body), key)
	return log, err
}

func (s *PGStore) List(ctx context.Context) ([]Info, error) {
	query := `
		SELECT s.key, s.created_at, s.updated_at, s.compactions, COUNT(m.seq)
		FROM ctxbudget_sessions s
		LEFT JOIN ctxbudget_messages m ON m.key = s.key
		GROUP BY s.key
		ORDER BY s.updated_at DESC, s.key
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Key, &info.CreatedAt, &info.UpdatedAt, &info.Compactions, &info.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return out, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
