package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository"
	"golang.org/x/exp/slices"
)

// reservedRoomIdChars would break store key prefixes and glob scans.
const reservedRoomIdChars = `:*?[]\`

type CreateRoomParams struct {
	RoomId string
	UserId string
}

func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (domain.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	room, err := s.createRoom(ctx, params)
	return room, s.finish(ctx, err)
}

func (s *service) createRoom(ctx context.Context, params *CreateRoomParams) (domain.Room, error) {
	if params.RoomId == "" || params.UserId == "" {
		return domain.Room{}, validationError("roomId and userId required")
	}
	if strings.ContainsAny(params.RoomId, reservedRoomIdChars) {
		return domain.Room{}, validationError("roomId must not contain any of " + reservedRoomIdChars)
	}

	unlock, err := s.locks.Lock(ctx, params.RoomId)
	if err != nil {
		return domain.Room{}, err
	}
	defer unlock()

	room := domain.NewRoom(params.RoomId, params.UserId, s.now().UnixMilli())
	value, err := json.Marshal(room)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to encode room: %w", err)
	}

	if err := s.store.CompareAndSwap(ctx, domain.RoomKey(params.RoomId), nil, value); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Room{}, domain.ErrRoomAlreadyExists
		}

		s.logger.InfoContext(ctx, "failed to create room", "room_id", params.RoomId, "error", err)
		return domain.Room{}, err
	}

	s.logger.InfoContext(ctx, "room created", "room_id", params.RoomId, "user_id", params.UserId)
	return room, nil
}

type JoinRoomParams struct {
	RoomId string
	UserId string
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (domain.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if params.RoomId == "" || params.UserId == "" {
		return domain.Room{}, validationError("roomId and userId required")
	}

	room, m, err := s.updateRoom(ctx, params.RoomId, func(r *domain.Room) (mutation, error) {
		if r.HasUser(params.UserId) {
			return mutationNone, nil
		}
		if len(r.Users) >= s.membersLimit {
			return mutationNone, domain.ErrRoomFull
		}

		r.Users = append(r.Users, params.UserId)
		return mutationWrite, nil
	})
	if err != nil {
		return domain.Room{}, s.finish(ctx, err)
	}

	if m == mutationWrite {
		s.logger.InfoContext(ctx, "user joined room", "room_id", params.RoomId, "user_id", params.UserId)
	}

	return room, nil
}

type LeaveRoomParams struct {
	RoomId string
	UserId string
}

type LeaveRoomResponse struct {
	Room          domain.Room
	IsRoomDeleted bool
}

func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if params.RoomId == "" || params.UserId == "" {
		return LeaveRoomResponse{}, validationError("roomId and userId required")
	}

	room, m, err := s.updateRoom(ctx, params.RoomId, func(r *domain.Room) (mutation, error) {
		if !r.HasUser(params.UserId) {
			return mutationNone, nil
		}

		r.Users = slices.DeleteFunc(r.Users, func(id string) bool {
			return id == params.UserId
		})
		// delete room if no user left
		if len(r.Users) == 0 {
			return mutationDelete, nil
		}

		return mutationWrite, nil
	})
	if err != nil {
		return LeaveRoomResponse{}, s.finish(ctx, err)
	}

	if m == mutationDelete {
		s.forgetChatClock(params.RoomId)
		s.logger.InfoContext(ctx, "room deleted", "room_id", params.RoomId)
		return LeaveRoomResponse{IsRoomDeleted: true}, nil
	}

	if m == mutationWrite {
		s.logger.InfoContext(ctx, "user left room", "room_id", params.RoomId, "user_id", params.UserId)
	}

	return LeaveRoomResponse{Room: room}, nil
}

func (s *service) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if roomId == "" {
		return domain.Room{}, validationError("roomId required")
	}

	_, room, err := s.loadRoom(ctx, roomId)
	if err != nil {
		return domain.Room{}, s.finish(ctx, err)
	}

	return room, nil
}
