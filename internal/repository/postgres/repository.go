package postgres

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharetube/watchparty/internal/repository"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS kv_store (
		key   TEXT PRIMARY KEY,
		value JSONB NOT NULL
	)`

type repo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepo returns a Room Store over a single key/value table, creating the
// table when it does not exist yet.
func NewRepo(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*repo, error) {
	if _, err := pool.Exec(ctx, createTableQuery); err != nil {
		return nil, repository.Unavailable("create table", err)
	}

	return &repo{
		pool:   pool,
		logger: logger,
	}, nil
}

func (r repo) Put(ctx context.Context, key string, value []byte) error {
	r.logger.DebugContext(ctx, "called", "op", "Put", "key", key)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Unavailable("put", err)
	}

	return nil
}

func (r repo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.logger.DebugContext(ctx, "called", "op", "Get", "key", key)
	var value []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}

		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, false, repository.Unavailable("get", err)
	}

	return value, true, nil
}

func (r repo) Delete(ctx context.Context, key string) error {
	r.logger.DebugContext(ctx, "called", "op", "Delete", "key", key)
	if _, err := r.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Unavailable("delete", err)
	}

	return nil
}

func (r repo) ScanByPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	r.logger.DebugContext(ctx, "called", "op", "ScanByPrefix", "prefix", prefix)
	rows, err := r.pool.Query(ctx, `SELECT value FROM kv_store WHERE key LIKE $1 ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, repository.Unavailable("scan", err)
	}

	values, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, repository.Unavailable("scan", err)
	}

	return values, nil
}

func (r repo) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	r.logger.DebugContext(ctx, "called", "op", "CompareAndSwap", "key", key)

	var (
		affected int64
		err      error
	)
	switch {
	case old == nil && value == nil:
		_, found, getErr := r.Get(ctx, key)
		if getErr != nil {
			return getErr
		}
		if found {
			return repository.ErrConflict
		}
		return nil
	case old == nil:
		affected, err = r.exec(ctx, `
			INSERT INTO kv_store (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, value)
	case value == nil:
		affected, err = r.exec(ctx, `DELETE FROM kv_store WHERE key = $1 AND value = $2::jsonb`, key, old)
	default:
		affected, err = r.exec(ctx, `
			UPDATE kv_store SET value = $3 WHERE key = $1 AND value = $2::jsonb
		`, key, old, value)
	}
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Unavailable("compare and swap", err)
	}

	if affected == 0 {
		return repository.ErrConflict
	}

	return nil
}

func (r repo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}
