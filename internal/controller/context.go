package controller

import (
	"context"

	"github.com/sharetube/watchparty/internal/realtime"
)

type contextKey int

const (
	roomIdCtxKey contextKey = iota
	subscriptionCtxKey
	wsConnCtxKey
)

func (c controller) getRoomIdFromCtx(ctx context.Context) string {
	roomId, ok := ctx.Value(roomIdCtxKey).(string)
	if !ok {
		return ""
	}

	return roomId
}

func (c controller) getSubscriptionFromCtx(ctx context.Context) *realtime.Subscription {
	sub, _ := ctx.Value(subscriptionCtxKey).(*realtime.Subscription)
	return sub
}

func (c controller) getWSConnFromCtx(ctx context.Context) *wsConn {
	conn, _ := ctx.Value(wsConnCtxKey).(*wsConn)
	return conn
}
