package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository"
	"golang.org/x/exp/slices"
)

// chat clock entries idle for longer than this are dropped; put-if-absent
// still keeps timestamps unique for a room seen again later
const chatClockIdle = 10 * time.Second

type SendMessageParams struct {
	RoomId   string
	UserId   string
	Username string
	Text     string
}

func (s *service) SendMessage(ctx context.Context, params *SendMessageParams) (domain.ChatMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := s.sendMessage(ctx, params)
	return msg, s.finish(ctx, err)
}

func (s *service) sendMessage(ctx context.Context, params *SendMessageParams) (domain.ChatMessage, error) {
	if params.RoomId == "" || params.UserId == "" || params.Username == "" || params.Text == "" {
		return domain.ChatMessage{}, validationError("roomId, userId, username, and text required")
	}

	if _, _, err := s.loadRoom(ctx, params.RoomId); err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		UserId:   params.UserId,
		Username: params.Username,
		Text:     params.Text,
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		msg.Timestamp = s.nextChatTimestamp(params.RoomId)
		value, err := json.Marshal(msg)
		if err != nil {
			return domain.ChatMessage{}, fmt.Errorf("failed to encode message: %w", err)
		}

		// another process may own this millisecond already
		err = s.store.CompareAndSwap(ctx, domain.ChatKey(params.RoomId, msg.Timestamp), nil, value)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			s.logger.InfoContext(ctx, "failed to store message", "room_id", params.RoomId, "error", err)
			return domain.ChatMessage{}, err
		}
	}

	return domain.ChatMessage{}, fmt.Errorf("%w: no free chat timestamp in room %s", domain.ErrServiceUnavailable, params.RoomId)
}

// nextChatTimestamp returns now in epoch ms, strictly greater than any
// timestamp previously handed out for the room by this process.
func (s *service) nextChatTimestamp(roomId string) int64 {
	s.chatTsMu.Lock()
	defer s.chatTsMu.Unlock()

	ts := s.now().UnixMilli()
	if last, ok := s.lastChatTs[roomId]; ok && ts <= last {
		ts = last + 1
	}
	s.lastChatTs[roomId] = ts

	if ts-s.lastChatSweep >= chatClockIdle.Milliseconds() {
		for id, last := range s.lastChatTs {
			if ts-last > chatClockIdle.Milliseconds() {
				delete(s.lastChatTs, id)
			}
		}
		s.lastChatSweep = ts
	}

	return ts
}

func (s *service) forgetChatClock(roomId string) {
	s.chatTsMu.Lock()
	defer s.chatTsMu.Unlock()

	delete(s.lastChatTs, roomId)
}

func (s *service) ListMessages(ctx context.Context, roomId string) ([]domain.ChatMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if roomId == "" {
		return nil, validationError("roomId required")
	}

	values, err := s.store.ScanByPrefix(ctx, domain.ChatPrefix(roomId))
	if err != nil {
		return nil, s.finish(ctx, err)
	}

	messages := make([]domain.ChatMessage, 0, len(values))
	for _, value := range values {
		var msg domain.ChatMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable message", "room_id", roomId, "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	slices.SortStableFunc(messages, func(a, b domain.ChatMessage) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})

	return messages, nil
}
