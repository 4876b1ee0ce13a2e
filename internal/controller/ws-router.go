package controller

import (
	"encoding/json"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(c.wsErrorHandler)
	mux.Use(c.wsRequestIdMw(), c.loggerWSMw())

	wsrouter.Handle(mux, string(domain.EventRoomUpdate), c.handleRoomUpdate)
	wsrouter.Handle(mux, string(domain.EventChatMessage), c.handleChatMessage)
	wsrouter.Handle[json.RawMessage](mux, "ping", c.handlePing)

	return mux
}
