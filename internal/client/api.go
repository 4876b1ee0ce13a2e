package client

import (
	"context"
	"encoding/json"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/optional"
)

// RoomAPI is the request/response surface of the room service as seen by a
// client.
type RoomAPI interface {
	CreateRoom(ctx context.Context, roomId, userId string) (domain.Room, error)
	JoinRoom(ctx context.Context, roomId, userId string) (domain.Room, error)
	LeaveRoom(ctx context.Context, roomId, userId string) error
	GetRoom(ctx context.Context, roomId string) (domain.Room, error)
	SendMessage(ctx context.Context, roomId, userId, username, text string) (domain.ChatMessage, error)
	ListMessages(ctx context.Context, roomId string) ([]domain.ChatMessage, error)
	SyncVideo(ctx context.Context, roomId string, videoUrl optional.Field[*string], videoState *domain.VideoStatePatch) (domain.Room, error)
}

// Channel is one subscription to a broadcast channel.
type Channel interface {
	On(kind domain.EventKind, cb func(payload json.RawMessage))
	Send(ctx context.Context, kind domain.EventKind, payload any) error
	Close() error
}

type Broadcaster interface {
	Subscribe(ctx context.Context, channel string) (Channel, error)
}
