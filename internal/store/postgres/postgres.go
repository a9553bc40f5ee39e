// Package postgres backs the document store with a single jsonb table.
// Optimistic concurrency: every document carries a version; transactional
// writes commit with a per-key version check and report store.ErrConflict
// when a concurrent writer got there first.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campuscoop/store-reserve/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key        text PRIMARY KEY,
	version    bigint NOT NULL DEFAULT 1,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);`

type Store struct {
	DB *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{DB: pool}, nil
}

func (s *Store) Close() { s.DB.Close() }

func (s *Store) Get(ctx context.Context, key string, out any) error {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT data FROM documents WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO documents(key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now()
	`, key, b)
	return err
}

func (s *Store) CreateIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO documents(key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, b)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM documents WHERE key=$1`, key)
	return err
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, raw []byte) error) error {
	rows, err := s.DB.Query(ctx, `SELECT key, data FROM documents WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

type write struct {
	data   []byte
	create bool
	del    bool
}

type tx struct {
	pgtx   pgx.Tx
	reads  map[string]int64 // version observed, 0 = absent
	writes map[string]write
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	t := &tx{pgtx: pgtx, reads: make(map[string]int64), writes: make(map[string]write)}
	if err := fn(t); err != nil {
		return err
	}

	// Validate read-only keys: lock the row and re-check the version seen
	// during the read phase. Written keys are checked by their UPDATEs.
	for key, ver := range t.reads {
		if _, written := t.writes[key]; written || ver == 0 {
			continue
		}
		var cur int64
		err := pgtx.QueryRow(ctx, `SELECT version FROM documents WHERE key=$1 FOR SHARE`, key).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && cur != ver) {
			return store.ErrConflict
		}
		if err != nil {
			return txErr(err)
		}
	}

	for key, w := range t.writes {
		switch {
		case w.del:
			if _, err := pgtx.Exec(ctx, `DELETE FROM documents WHERE key=$1`, key); err != nil {
				return txErr(err)
			}
		case w.create:
			ct, err := pgtx.Exec(ctx, `
				INSERT INTO documents(key, data) VALUES ($1, $2)
				ON CONFLICT (key) DO NOTHING`, key, w.data)
			if err != nil {
				return txErr(err)
			}
			if ct.RowsAffected() != 1 {
				return store.ErrConflict
			}
		default:
			ver := t.reads[key]
			if ver == 0 {
				ct, err := pgtx.Exec(ctx, `
					INSERT INTO documents(key, data) VALUES ($1, $2)
					ON CONFLICT (key) DO NOTHING`, key, w.data)
				if err != nil {
					return txErr(err)
				}
				if ct.RowsAffected() != 1 {
					return store.ErrConflict
				}
				continue
			}
			ct, err := pgtx.Exec(ctx, `
				UPDATE documents
				SET data=$2, version=version+1, updated_at=now()
				WHERE key=$1 AND version=$3`, key, w.data, ver)
			if err != nil {
				return txErr(err)
			}
			if ct.RowsAffected() != 1 {
				return store.ErrConflict
			}
		}
	}
	if err := pgtx.Commit(ctx); err != nil {
		return txErr(err)
	}
	return nil
}

// txErr maps serialization failures (SQLSTATE 40001) to the store's conflict
// error so callers retry instead of failing hard.
func txErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return store.ErrConflict
	}
	return err
}

func (t *tx) Get(ctx context.Context, key string, out any) error {
	if w, ok := t.writes[key]; ok {
		if w.del {
			return store.ErrNotFound
		}
		return json.Unmarshal(w.data, out)
	}
	var raw []byte
	var ver int64
	err := t.pgtx.QueryRow(ctx, `SELECT version, data FROM documents WHERE key=$1`, key).Scan(&ver, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, seen := t.reads[key]; !seen {
			t.reads[key] = 0
		}
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = ver
	}
	return json.Unmarshal(raw, out)
}

func (t *tx) Set(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.writes[key] = write{data: b}
}

func (t *tx) Create(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.writes[key] = write{data: b, create: true}
}

func (t *tx) Delete(key string) {
	t.writes[key] = write{del: true}
}
