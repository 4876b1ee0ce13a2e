package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, s *miniredis.Miniredis) *AppConfig {
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	return &AppConfig{
		Host:         "127.0.0.1",
		LogLevel:     "debug",
		Store:        StoreRedis,
		PubSub:       PubSubRedis,
		RedisHost:    s.Host(),
		RedisPort:    port,
		RecordTTL:    time.Hour,
		MembersLimit: 2,
		OpTimeout:    5 * time.Second,
	}
}

// startInstance runs one server process against the shared redis.
func startInstance(t *testing.T, ctx context.Context, cfg *AppConfig) *httptest.Server {
	a, err := build(ctx, cfg, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	ready := make(chan struct{})
	go a.hub.Run(ctx, func() { close(ready) })
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("realtime transport did not become ready")
	}

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)

	return srv
}

func newParticipant(t *testing.T, srv *httptest.Server, userId, username string) *client.Reconciler {
	bc, err := client.NewWSBroadcaster(srv.URL, newTestLogger())
	require.NoError(t, err)

	r := client.NewReconciler(
		client.NewHTTPRoomAPI(srv.URL, srv.Client()),
		bc,
		client.Identity{UserId: userId, Username: username},
		&client.Config{Retry: client.RetryPolicy{Attempts: 3, BaseDelay: 10 * time.Millisecond}},
		newTestLogger(),
	)
	t.Cleanup(func() { r.Disconnect(context.Background()) })

	return r
}

func TestConfigValidate(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := testConfig(t, s)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Store = "sqlite"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Store = StorePostgres
	assert.Error(t, bad.Validate(), "postgres needs a url")

	bad = *cfg
	bad.MembersLimit = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.PubSub = "kafka"
	assert.Error(t, bad.Validate())
}

func TestWatchPartyAcrossInstances(t *testing.T) {
	s := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t, s)
	first := startInstance(t, ctx, cfg)
	second := startInstance(t, ctx, cfg)

	alice := newParticipant(t, first, "u1", "Alice")
	bob := newParticipant(t, second, "u2", "Bob")

	require.NoError(t, alice.Connect(ctx, "ABCD"))
	require.NoError(t, bob.Connect(ctx, "ABCD"))
	assert.Equal(t, []string{"u1", "u2"}, bob.Snapshot().Users)

	// the join on the second instance reaches alice through redis
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"u1", "u2"}, alice.Snapshot().Users)
	}, 5*time.Second, 10*time.Millisecond)

	msg, err := bob.SendMessage(ctx, "hi")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(alice.Snapshot().Messages) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg, alice.Snapshot().Messages[0])
	assert.Len(t, bob.Snapshot().Messages, 1)

	require.NoError(t, alice.LoadVideo(ctx, "https://youtu.be/dQw4w9WgXcQ"))
	require.Eventually(t, func() bool {
		url := bob.Snapshot().VideoUrl
		return url != nil && *url == "https://youtu.be/dQw4w9WgXcQ"
	}, 5*time.Second, 10*time.Millisecond)

	carol := newParticipant(t, first, "u3", "Carol")
	assert.ErrorIs(t, carol.Connect(ctx, "ABCD"), domain.ErrRoomFull)
	assert.Equal(t, client.StateDisconnected, carol.Snapshot().State)

	require.NoError(t, bob.Disconnect(ctx))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"u1"}, alice.Snapshot().Users)
	}, 5*time.Second, 10*time.Millisecond)

	// a late joiner gets the history from the store
	dave := newParticipant(t, second, "u4", "Dave")
	require.NoError(t, dave.Connect(ctx, "ABCD"))
	snap := dave.Snapshot()
	assert.Equal(t, []domain.ChatMessage{msg}, snap.Messages)
	require.NotNil(t, snap.VideoUrl)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", *snap.VideoUrl)
}

func TestMemoryStoreLocalPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startInstance(t, ctx, &AppConfig{
		LogLevel:     "info",
		Store:        StoreMemory,
		PubSub:       PubSubLocal,
		MembersLimit: 2,
		OpTimeout:    time.Second,
	})

	alice := newParticipant(t, srv, "u1", "Alice")
	bob := newParticipant(t, srv, "u2", "Bob")
	require.NoError(t, alice.Connect(ctx, "ROOM1"))
	require.NoError(t, bob.Connect(ctx, "ROOM1"))

	_, err := alice.SendMessage(ctx, "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(bob.Snapshot().Messages) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
