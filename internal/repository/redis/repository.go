package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository"
	"golang.org/x/exp/slices"
)

const scanCount = 256

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
	logger         *slog.Logger
}

// NewRepo returns a Room Store backed by redis. A zero expireDuration keeps
// records forever.
func NewRepo(rc *redis.Client, expireDuration time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
		logger:         logger,
	}
}

func (r repo) Put(ctx context.Context, key string, value []byte) error {
	r.logger.DebugContext(ctx, "called", "op", "Put", "key", key)
	if err := r.rc.Set(ctx, key, value, r.expireDuration).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Unavailable("put", err)
	}

	return nil
}

func (r repo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.logger.DebugContext(ctx, "called", "op", "Get", "key", key)
	value, err := r.rc.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, false, repository.Unavailable("get", err)
	}

	return value, true, nil
}

func (r repo) Delete(ctx context.Context, key string) error {
	r.logger.DebugContext(ctx, "called", "op", "Delete", "key", key)
	if err := r.rc.Del(ctx, key).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Unavailable("delete", err)
	}

	return nil
}

func (r repo) ScanByPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	r.logger.DebugContext(ctx, "called", "op", "ScanByPrefix", "prefix", prefix)
	keys := make([]string, 0)
	iter := r.rc.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, repository.Unavailable("scan", err)
	}

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	values, err := r.rc.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, repository.Unavailable("mget", err)
	}

	res := make([][]byte, 0, len(values))
	for _, v := range values {
		// key deleted between SCAN and MGET
		s, ok := v.(string)
		if !ok {
			continue
		}
		res = append(res, []byte(s))
	}

	return res, nil
}

// CompareAndSwap replaces the value at key with value only if it still equals
// old. A nil old means the key must be absent, a nil value deletes the key.
func (r repo) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	r.logger.DebugContext(ctx, "called", "op", "CompareAndSwap", "key", key)
	err := r.rc.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		exists := err == nil
		if (old == nil) == exists || (old != nil && string(current) != string(old)) {
			return repository.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if value == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, value, r.expireDuration)
			}
			return nil
		})

		return err
	}, key)
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, redis.TxFailedErr) {
			return repository.ErrConflict
		}

		return repository.Unavailable("compare and swap", err)
	}

	return nil
}

// uniqueKeys drops repeated keys; SCAN may return a key more than once.
func uniqueKeys(keys []string) []string {
	slices.Sort(keys)
	return slices.Compact(keys)
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
