package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/pkg/optional"
)

// HTTPRoomAPI talks to the room service REST routes.
type HTTPRoomAPI struct {
	baseUrl string
	hc      *http.Client
}

func NewHTTPRoomAPI(baseUrl string, hc *http.Client) *HTTPRoomAPI {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	return &HTTPRoomAPI{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		hc:      hc,
	}
}

type roomResponse struct {
	Room domain.Room `json:"room"`
}

type memberRequest struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

func (a *HTTPRoomAPI) CreateRoom(ctx context.Context, roomId, userId string) (domain.Room, error) {
	var resp roomResponse
	err := a.do(ctx, http.MethodPost, "/room/create", memberRequest{RoomId: roomId, UserId: userId}, &resp)
	return resp.Room, err
}

func (a *HTTPRoomAPI) JoinRoom(ctx context.Context, roomId, userId string) (domain.Room, error) {
	var resp roomResponse
	err := a.do(ctx, http.MethodPost, "/room/join", memberRequest{RoomId: roomId, UserId: userId}, &resp)
	return resp.Room, err
}

func (a *HTTPRoomAPI) LeaveRoom(ctx context.Context, roomId, userId string) error {
	return a.do(ctx, http.MethodPost, "/room/leave", memberRequest{RoomId: roomId, UserId: userId}, nil)
}

func (a *HTTPRoomAPI) GetRoom(ctx context.Context, roomId string) (domain.Room, error) {
	var resp roomResponse
	err := a.do(ctx, http.MethodGet, "/room/"+url.PathEscape(roomId), nil, &resp)
	return resp.Room, err
}

func (a *HTTPRoomAPI) SendMessage(ctx context.Context, roomId, userId, username, text string) (domain.ChatMessage, error) {
	var resp struct {
		Message domain.ChatMessage `json:"message"`
	}
	err := a.do(ctx, http.MethodPost, "/chat/send", map[string]string{
		"roomId":   roomId,
		"userId":   userId,
		"username": username,
		"text":     text,
	}, &resp)
	return resp.Message, err
}

func (a *HTTPRoomAPI) ListMessages(ctx context.Context, roomId string) ([]domain.ChatMessage, error) {
	var resp struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(roomId), nil, &resp)
	return resp.Messages, err
}

func (a *HTTPRoomAPI) SyncVideo(ctx context.Context, roomId string, videoUrl optional.Field[*string], videoState *domain.VideoStatePatch) (domain.Room, error) {
	body := map[string]any{"roomId": roomId}
	if videoUrl.Defined {
		body["videoUrl"] = videoUrl.Value
	}
	if videoState != nil {
		body["videoState"] = videoState
	}

	var resp roomResponse
	err := a.do(ctx, http.MethodPost, "/video/sync", body, &resp)
	return resp.Room, err
}

func (a *HTTPRoomAPI) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseUrl+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errBody)

		return statusError(resp.StatusCode, errBody.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// statusError maps a response status back onto the domain errors.
func statusError(status int, msg string) error {
	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = domain.ErrValidation
	case http.StatusNotFound:
		kind = domain.ErrRoomNotFound
	case http.StatusConflict:
		kind = domain.ErrRoomAlreadyExists
	case http.StatusForbidden:
		kind = domain.ErrRoomFull
	case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		kind = domain.ErrServiceUnavailable
	default:
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}

	if msg == "" || msg == kind.Error() {
		return kind
	}

	return fmt.Errorf("%w: %s", kind, msg)
}
