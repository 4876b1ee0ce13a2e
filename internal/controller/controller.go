package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/realtime"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsrouter"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (domain.Room, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (domain.Room, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	GetRoom(context.Context, string) (domain.Room, error)
	SendMessage(context.Context, *room.SendMessageParams) (domain.ChatMessage, error)
	ListMessages(context.Context, string) ([]domain.ChatMessage, error)
	SyncVideo(context.Context, *room.SyncVideoParams) (domain.Room, error)
}

type iHub interface {
	SubscribeQueued(channel string, size int) *realtime.Subscription
	Publish(ctx context.Context, channel string, kind domain.EventKind, payload any) error
}

type iVideoInfo interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy takes the client ip from X-Forwarded-For/X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy     bool
}

type controller struct {
	roomService iRoomService
	hub         iHub
	videoInfo   iVideoInfo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	limiter     *ipRateLimiter
	wsmux       *wsrouter.WSRouter
	trustProxy  bool
	logger      *slog.Logger
}

func NewController(roomService iRoomService, hub iHub, videoInfo iVideoInfo, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		hub:         hub,
		videoInfo:   videoInfo,
		validate:    validator.NewValidator(),
		limiter:     newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 5*time.Minute),
		trustProxy:  cfg.TrustProxy,
		logger:      logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
