package redis

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, ttl time.Duration) (*repo, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, ttl, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestPutGetDelete(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()

	_, found, err := r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Put(ctx, "room:A", []byte(`{"id":"A"}`)))
	value, found, err := r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"A"}`, string(value))

	require.NoError(t, r.Delete(ctx, "room:A"))
	require.NoError(t, r.Delete(ctx, "room:A"))
	_, found, err = r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScanByPrefix(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "chat:A:1:u1", []byte(`1`)))
	require.NoError(t, r.Put(ctx, "chat:A:2:u2", []byte(`2`)))
	require.NoError(t, r.Put(ctx, "chat:AB:1:u1", []byte(`3`)))
	require.NoError(t, r.Put(ctx, "room:A", []byte(`4`)))

	values, err := r.ScanByPrefix(ctx, "chat:A:")
	require.NoError(t, err)
	got := make([]string, 0, len(values))
	for _, v := range values {
		got = append(got, string(v))
	}
	sort.Strings(got)
	assert.Equal(t, []string{"1", "2"}, got)

	values, err = r.ScanByPrefix(ctx, "chat:Z:")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestUniqueKeys(t *testing.T) {
	assert.Equal(t, []string{"chat:R:1", "chat:R:2"}, uniqueKeys([]string{"chat:R:2", "chat:R:1", "chat:R:2", "chat:R:1"}))
	assert.Empty(t, uniqueKeys([]string{}))
}

func TestScanByPrefixEscapesGlob(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "chat:a*:1", []byte(`1`)))
	require.NoError(t, r.Put(ctx, "chat:ab:1", []byte(`2`)))

	values, err := r.ScanByPrefix(ctx, "chat:a*:")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "1", string(values[0]))
}

func TestCompareAndSwap(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, r.CompareAndSwap(ctx, "room:A", nil, []byte(`1`)))
	assert.ErrorIs(t, r.CompareAndSwap(ctx, "room:A", nil, []byte(`2`)), repository.ErrConflict)
	assert.ErrorIs(t, r.CompareAndSwap(ctx, "room:A", []byte(`0`), []byte(`2`)), repository.ErrConflict)

	require.NoError(t, r.CompareAndSwap(ctx, "room:A", []byte(`1`), []byte(`2`)))
	value, _, err := r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.Equal(t, "2", string(value))

	require.NoError(t, r.CompareAndSwap(ctx, "room:A", []byte(`2`), nil))
	_, found, err := r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, r.CompareAndSwap(ctx, "room:A", []byte(`2`), []byte(`3`)), repository.ErrConflict)
}

func TestRecordsExpire(t *testing.T) {
	r, s := newTestRepo(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "room:A", []byte(`1`)))
	require.NoError(t, r.CompareAndSwap(ctx, "room:B", nil, []byte(`1`)))
	assert.Equal(t, time.Hour, s.TTL("room:A"))
	assert.Equal(t, time.Hour, s.TTL("room:B"))

	s.FastForward(2 * time.Hour)
	_, found, err := r.Get(ctx, "room:A")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnavailable(t *testing.T) {
	r, s := newTestRepo(t, 0)
	s.Close()

	_, _, err := r.Get(context.Background(), "room:A")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, r.Put(context.Background(), "room:A", []byte(`1`)), domain.ErrStorageUnavailable)
}
