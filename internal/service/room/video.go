package room

import (
	"context"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/optional"
)

type SyncVideoParams struct {
	RoomId string
	// Defined with a nil value clears the video.
	VideoUrl   optional.Field[*string]
	VideoState *domain.VideoStatePatch
}

func (s *service) SyncVideo(ctx context.Context, params *SyncVideoParams) (domain.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if params.RoomId == "" {
		return domain.Room{}, validationError("roomId required")
	}

	room, _, err := s.updateRoom(ctx, params.RoomId, func(r *domain.Room) (mutation, error) {
		if params.VideoUrl.Defined {
			r.VideoUrl = params.VideoUrl.Value
		}
		if params.VideoState != nil {
			r.VideoState = r.VideoState.Merge(*params.VideoState)
		}

		return mutationWrite, nil
	})
	if err != nil {
		return domain.Room{}, s.finish(ctx, err)
	}

	s.logger.DebugContext(ctx, "video synced", "room_id", params.RoomId, "version", room.Version)
	return room, nil
}
