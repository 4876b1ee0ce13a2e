package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/rest"
)

// serveWS subscribes the connection to room:<roomId>. Events from other
// subscribers are written to the socket and frames read from it are
// re-broadcast to everyone else on the channel.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "roomId")
	if roomId == "" || strings.ContainsAny(roomId, ":*?[]\\") {
		c.writeJSON(r.Context(), w, http.StatusBadRequest, rest.Envelope{"error": "invalid room id"})
		return
	}

	// the request context is not canceled for hijacked connections
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_conn_id", c.generateTimeBasedId()))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", roomId))

	// subscribe before the handshake completes so the client cannot miss
	// events sent right after it connected; writes wait for the upgrade
	wc := &wsConn{}
	wc.mu.Lock()
	sub := c.hub.SubscribeQueued(domain.ChannelName(roomId), wsQueueSize)
	defer sub.Unsubscribe()

	for _, kind := range []domain.EventKind{domain.EventRoomUpdate, domain.EventChatMessage} {
		kind := kind
		sub.On(kind, func(payload json.RawMessage) {
			if err := wc.writeJSON(&Output{Type: string(kind), Payload: payload}); err != nil {
				c.logger.DebugContext(ctx, "failed to forward event", "kind", kind, "error", err)
				cancel()
			}
		})
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	wc.conn = conn
	wc.mu.Unlock()
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(rest.MaxBodyBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.keepAlive(ctx, wc, cancel)

	c.logger.InfoContext(ctx, "websocket connected", "subscription_id", sub.Id())

	ctx = context.WithValue(ctx, roomIdCtxKey, roomId)
	ctx = context.WithValue(ctx, subscriptionCtxKey, sub)
	ctx = context.WithValue(ctx, wsConnCtxKey, wc)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil && !isNormalClose(err) {
		c.logger.InfoContext(ctx, "websocket closed", "error", err)
		return
	}

	c.logger.InfoContext(ctx, "websocket disconnected")
}

func (c controller) keepAlive(ctx context.Context, wc *wsConn, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// unblocks the read loop
			wc.conn.Close()
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				cancel()
				wc.conn.Close()
				return
			}
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}

// wsErrorHandler reports a failed frame back to the sender and keeps the
// connection open.
func (c controller) wsErrorHandler(ctx context.Context, _ *websocket.Conn, err error) error {
	c.logger.DebugContext(ctx, "websocket message rejected", "error", err)

	wc := c.getWSConnFromCtx(ctx)
	if wc == nil {
		return err
	}

	return wc.writeJSON(&Output{
		Type:    "error",
		Payload: map[string]string{"message": err.Error()},
	})
}

func (c controller) handleRoomUpdate(ctx context.Context, _ *websocket.Conn, input domain.RoomUpdate) error {
	if input.VideoUrl == nil && input.Users == nil {
		return fmt.Errorf("%w: room-update needs videoUrl or users", domain.ErrValidation)
	}

	return c.getSubscriptionFromCtx(ctx).Send(ctx, domain.EventRoomUpdate, input)
}

func (c controller) handleChatMessage(ctx context.Context, _ *websocket.Conn, input domain.ChatMessage) error {
	if input.UserId == "" || input.Text == "" || input.Timestamp <= 0 {
		return fmt.Errorf("%w: chat-message needs userId, text and timestamp", domain.ErrValidation)
	}

	return c.getSubscriptionFromCtx(ctx).Send(ctx, domain.EventChatMessage, input)
}

func (c controller) handlePing(ctx context.Context, _ *websocket.Conn, _ json.RawMessage) error {
	return c.getWSConnFromCtx(ctx).writeJSON(&Output{Type: "pong"})
}
