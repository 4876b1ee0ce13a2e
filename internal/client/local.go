package client

import (
	"context"
	"encoding/json"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/realtime"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/optional"
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

// LocalRoomAPI calls a room service in the same process.
type LocalRoomAPI struct {
	service iRoomService
}

func NewLocalRoomAPI(service iRoomService) *LocalRoomAPI {
	return &LocalRoomAPI{service: service}
}

func (a *LocalRoomAPI) CreateRoom(ctx context.Context, roomId, userId string) (domain.Room, error) {
	return a.service.CreateRoom(ctx, &room.CreateRoomParams{RoomId: roomId, UserId: userId})
}

func (a *LocalRoomAPI) JoinRoom(ctx context.Context, roomId, userId string) (domain.Room, error) {
	return a.service.JoinRoom(ctx, &room.JoinRoomParams{RoomId: roomId, UserId: userId})
}

func (a *LocalRoomAPI) LeaveRoom(ctx context.Context, roomId, userId string) error {
	_, err := a.service.LeaveRoom(ctx, &room.LeaveRoomParams{RoomId: roomId, UserId: userId})
	return err
}

func (a *LocalRoomAPI) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	return a.service.GetRoom(ctx, roomId)
}

func (a *LocalRoomAPI) SendMessage(ctx context.Context, roomId, userId, username, text string) (domain.ChatMessage, error) {
	return a.service.SendMessage(ctx, &room.SendMessageParams{
		RoomId:   roomId,
		UserId:   userId,
		Username: username,
		Text:     text,
	})
}

func (a *LocalRoomAPI) ListMessages(ctx context.Context, roomId string) ([]domain.ChatMessage, error) {
	return a.service.ListMessages(ctx, roomId)
}

func (a *LocalRoomAPI) SyncVideo(ctx context.Context, roomId string, videoUrl optional.Field[*string], videoState *domain.VideoStatePatch) (domain.Room, error) {
	return a.service.SyncVideo(ctx, &room.SyncVideoParams{
		RoomId:     roomId,
		VideoUrl:   videoUrl,
		VideoState: videoState,
	})
}

// LocalBroadcaster subscribes directly on a hub in the same process.
type LocalBroadcaster struct {
	hub *realtime.Hub
}

func NewLocalBroadcaster(hub *realtime.Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Subscribe(_ context.Context, channel string) (Channel, error) {
	return localChannel{sub: b.hub.Subscribe(channel)}, nil
}

type localChannel struct {
	sub *realtime.Subscription
}

func (c localChannel) On(kind domain.EventKind, cb func(json.RawMessage)) {
	c.sub.On(kind, cb)
}

func (c localChannel) Send(ctx context.Context, kind domain.EventKind, payload any) error {
	return c.sub.Send(ctx, kind, payload)
}

func (c localChannel) Close() error {
	c.sub.Unsubscribe()
	return nil
}
