package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/realtime"
	"github.com/sharetube/watchparty/internal/repository/inmemory"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/rest"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVideoInfo struct{}

func (fakeVideoInfo) Get(_ context.Context, videoId string) (*ytvideodata.VideoData, error) {
	if videoId == "aaaaaaaaaaa" {
		return nil, ytvideodata.ErrVideoNotFound
	}

	return &ytvideodata.VideoData{Title: "Song", AuthorName: "Rick", ThumbnailUrl: "https://img/" + videoId}, nil
}

func newTestServer(t *testing.T, cfg *Config) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := room.NewService(inmemory.NewRepo(logger), nil, logger)
	hub := realtime.NewHub(nil, logger)
	if cfg == nil {
		cfg = &Config{}
	}

	srv := httptest.NewServer(NewController(service, hub, fakeVideoInfo{}, cfg, logger).GetMux())
	t.Cleanup(srv.Close)

	return srv
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRoomLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/room/create", map[string]string{"roomId": "ABCD", "userId": "u1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{"u1"}, body["room"].(map[string]any)["users"])
	assert.Nil(t, body["room"].(map[string]any)["videoUrl"])

	status, body = doJSON(t, http.MethodPost, srv.URL+"/room/create", map[string]string{"roomId": "ABCD", "userId": "u9"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "room already exists", body["error"])

	status, body = doJSON(t, http.MethodPost, srv.URL+"/room/join", map[string]string{"roomId": "ABCD", "userId": "u2"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"u1", "u2"}, body["room"].(map[string]any)["users"])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/room/join", map[string]string{"roomId": "ABCD", "userId": "u3"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/room/join", map[string]string{"roomId": "NOPE", "userId": "u3"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doJSON(t, http.MethodGet, srv.URL+"/room/ABCD", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ABCD", body["room"].(map[string]any)["roomId"])

	for _, userId := range []string{"u1", "u2"} {
		status, body = doJSON(t, http.MethodPost, srv.URL+"/room/leave", map[string]string{"roomId": "ABCD", "userId": userId})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
	}

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/room/ABCD", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/room/leave", map[string]string{"roomId": "ABCD", "userId": "u1"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body any
	}{
		{name: "missing user", path: "/room/create", body: map[string]string{"roomId": "ABCD"}},
		{name: "reserved room chars", path: "/room/create", body: map[string]string{"roomId": "AB:*", "userId": "u1"}},
		{name: "malformed", path: "/room/join", body: `{"roomId":`},
		{name: "empty body", path: "/room/leave", body: ``},
		{name: "missing text", path: "/chat/send", body: map[string]string{"roomId": "ABCD", "userId": "u1", "username": "Alice"}},
		{name: "missing room", path: "/video/sync", body: map[string]any{"videoUrl": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, http.MethodPost, srv.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestChat(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/chat/send", map[string]string{"roomId": "ABCD", "userId": "u1", "username": "Alice", "text": "hi"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/room/create", map[string]string{"roomId": "ABCD", "userId": "u1"})
	require.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/chat/send", map[string]string{"roomId": "ABCD", "userId": "u1", "username": "Alice", "text": "hi"})
	require.Equal(t, http.StatusOK, status)
	msg := body["message"].(map[string]any)
	assert.Equal(t, "hi", msg["text"])
	assert.Greater(t, msg["timestamp"].(float64), float64(0))

	status, body = doJSON(t, http.MethodGet, srv.URL+"/chat/ABCD", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{msg}, body["messages"])

	status, body = doJSON(t, http.MethodGet, srv.URL+"/chat/EMPTY", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["messages"])
}

func TestSyncVideo(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/room/create", map[string]string{"roomId": "ABCD", "userId": "u1"})
	require.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/video/sync", map[string]any{
		"roomId":     "ABCD",
		"videoUrl":   "https://youtu.be/xyz",
		"videoState": map[string]any{"currentTime": 10},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://youtu.be/xyz", body["room"].(map[string]any)["videoUrl"])

	status, body = doJSON(t, http.MethodPost, srv.URL+"/video/sync", map[string]any{
		"roomId":     "ABCD",
		"videoState": map[string]any{"playing": true},
	})
	require.Equal(t, http.StatusOK, status)
	r := body["room"].(map[string]any)
	assert.Equal(t, "https://youtu.be/xyz", r["videoUrl"], "absent videoUrl must not clear it")
	assert.Equal(t, map[string]any{"playing": true, "currentTime": float64(10)}, r["videoState"])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/video/sync", map[string]any{"roomId": "NOPE", "videoUrl": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVideoInfo(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/video/info?url=https://youtu.be/dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dQw4w9WgXcQ", body["videoId"])
	assert.Equal(t, "https://www.youtube.com/embed/dQw4w9WgXcQ?enablejsapi=1", body["embedUrl"])
	assert.Equal(t, "Song", body["title"])
	assert.Equal(t, "Rick", body["authorName"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/video/info?url=https://youtu.be/xyz", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/video/info?url=https://youtu.be/aaaaaaaaaaa", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	status, _ := doJSON(t, http.MethodGet, srv.URL+"/chat/ABCD", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/chat/ABCD", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate limit exceeded", body["error"])

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status, "health is not rate limited")
}

func getWithForwardedFor(t *testing.T, url, ip string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", ip)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	return resp.StatusCode
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	srv := newTestServer(t, &Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/chat/ABCD", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, getWithForwardedFor(t, srv.URL+"/chat/ABCD", "10.0.0.2"))
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	srv := newTestServer(t, &Config{RateLimitRPS: 0.001, RateLimitBurst: 1, TrustProxy: true})

	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/chat/ABCD", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, getWithForwardedFor(t, srv.URL+"/chat/ABCD", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, getWithForwardedFor(t, srv.URL+"/chat/ABCD", "10.0.0.1"))
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, errorStatus(domain.ErrStorageUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, errorStatus(domain.ErrServiceUnavailable))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(io.ErrUnexpectedEOF))
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialRoom(t *testing.T, srv *httptest.Server, roomId string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/"+roomId, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

// syncFrames makes sure the server has processed every earlier frame of conn.
func syncFrames(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(frame{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestWebsocketFanout(t *testing.T) {
	srv := newTestServer(t, nil)

	alice := dialRoom(t, srv, "ABCD")
	bob := dialRoom(t, srv, "ABCD")
	other := dialRoom(t, srv, "OTHER")
	syncFrames(t, alice)
	syncFrames(t, bob)
	syncFrames(t, other)

	msg := domain.ChatMessage{UserId: "u1", Username: "Alice", Text: "hi", Timestamp: 42}
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "chat-message", "payload": msg}))

	f := readFrame(t, bob)
	assert.Equal(t, "chat-message", f.Type)
	var got domain.ChatMessage
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	assert.Equal(t, msg, got)

	// the sender gets nothing back; its next frame is the pong
	syncFrames(t, alice)
	syncFrames(t, other)
}

func TestWebsocketReceivesServerRoomUpdates(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/room/create", map[string]string{"roomId": "ABCD", "userId": "u1"})
	require.Equal(t, http.StatusOK, status)

	conn := dialRoom(t, srv, "ABCD")
	syncFrames(t, conn)

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/room/join", map[string]string{"roomId": "ABCD", "userId": "u2"})
	require.Equal(t, http.StatusOK, status)

	f := readFrame(t, conn)
	assert.Equal(t, "room-update", f.Type)
	var update domain.RoomUpdate
	require.NoError(t, json.Unmarshal(f.Payload, &update))
	assert.Equal(t, []string{"u1", "u2"}, update.Users)
	assert.Equal(t, int64(2), update.Version)
}

func TestWebsocketRejectsBadFrames(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialRoom(t, srv, "ABCD")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, string(f.Payload), "unknown message type")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat-message", "payload": map[string]any{"text": "no user"}}))
	f = readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, string(f.Payload), "validation error")

	// still usable
	syncFrames(t, conn)
}

func TestWebsocketRejectsOversizedFrames(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialRoom(t, srv, "ABCD")
	syncFrames(t, conn)

	big := strings.Repeat("x", rest.MaxBodyBytes+1)
	// the server may drop the connection before the write completes
	conn.WriteJSON(map[string]any{"type": "chat-message", "payload": map[string]any{"text": big}})

	// without a limit the frame would be answered with a validation error
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	err := conn.ReadJSON(&f)
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed, not idle")
	}
}
