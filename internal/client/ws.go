package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSBroadcaster subscribes to room channels through the server's websocket
// gateway.
type WSBroadcaster struct {
	baseUrl string
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewWSBroadcaster accepts the server's http(s) or ws(s) base url.
func NewWSBroadcaster(serverUrl string, logger *slog.Logger) (*WSBroadcaster, error) {
	u, err := url.Parse(strings.TrimRight(serverUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return &WSBroadcaster{
		baseUrl: u.String(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger,
	}, nil
}

func (b *WSBroadcaster) Subscribe(ctx context.Context, channel string) (Channel, error) {
	roomId, ok := strings.CutPrefix(channel, domain.ChannelName(""))
	if !ok || roomId == "" {
		return nil, fmt.Errorf("%w: channel %q is not a room channel", domain.ErrValidation, channel)
	}

	conn, _, err := b.dialer.DialContext(ctx, b.baseUrl+"/ws/"+url.PathEscape(roomId), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}

	c := &wsChannel{
		conn:      conn,
		callbacks: make(map[domain.EventKind][]func(json.RawMessage)),
		done:      make(chan struct{}),
		logger:    b.logger.With("channel", channel),
	}
	go c.readLoop()

	return c, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	mu        sync.RWMutex
	callbacks map[domain.EventKind][]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func (c *wsChannel) On(kind domain.EventKind, cb func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks[kind] = append(c.callbacks[kind], cb)
}

func (c *wsChannel) Send(_ context.Context, kind domain.EventKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}

	return c.conn.WriteJSON(frame{Type: string(kind), Payload: raw})
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		<-c.done
	})

	return err
}

func (c *wsChannel) readLoop() {
	defer close(c.done)

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read stopped", "error", err)
			}
			return
		}

		switch kind := domain.EventKind(f.Type); {
		case kind.Valid():
			c.dispatch(kind, f.Payload)
		case f.Type == "error":
			c.logger.Warn("server rejected frame", "payload", string(f.Payload))
		}
	}
}

func (c *wsChannel) dispatch(kind domain.EventKind, payload json.RawMessage) {
	c.mu.RLock()
	callbacks := append(([]func(json.RawMessage))(nil), c.callbacks[kind]...)
	c.mu.RUnlock()

	for _, cb := range callbacks {
		cb(payload)
	}
}
