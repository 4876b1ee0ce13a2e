package inmemory

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sharetube/watchparty/internal/repository"
)

type repo struct {
	records map[string][]byte
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewRepo returns a process-local Room Store.
func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		records: make(map[string][]byte),
		logger:  logger,
	}
}

func (r *repo) Put(ctx context.Context, key string, value []byte) error {
	funcName := "inmemory.Put"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, funcName, "key", key)
	r.records[key] = bytes.Clone(value)

	return nil
}

func (r *repo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	funcName := "inmemory.Get"
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.logger.DebugContext(ctx, funcName, "key", key)
	value, ok := r.records[key]
	if !ok {
		return nil, false, nil
	}

	return bytes.Clone(value), true, nil
}

func (r *repo) Delete(ctx context.Context, key string) error {
	funcName := "inmemory.Delete"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, funcName, "key", key)
	delete(r.records, key)

	return nil
}

func (r *repo) ScanByPrefix(ctx context.Context, prefix string) ([][]byte, error) {
	funcName := "inmemory.ScanByPrefix"
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.logger.DebugContext(ctx, funcName, "prefix", prefix)
	res := make([][]byte, 0)
	for key, value := range r.records {
		if strings.HasPrefix(key, prefix) {
			res = append(res, bytes.Clone(value))
		}
	}

	return res, nil
}

func (r *repo) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	funcName := "inmemory.CompareAndSwap"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.DebugContext(ctx, funcName, "key", key)
	current, exists := r.records[key]
	if (old == nil) == exists || (old != nil && !bytes.Equal(current, old)) {
		r.logger.DebugContext(ctx, funcName, "error", repository.ErrConflict)
		return repository.ErrConflict
	}

	if value == nil {
		delete(r.records, key)
	} else {
		r.records[key] = bytes.Clone(value)
	}

	return nil
}
