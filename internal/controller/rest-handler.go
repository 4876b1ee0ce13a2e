package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/optional"
	"github.com/sharetube/watchparty/pkg/rest"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

// readInput decodes the body into dst and runs struct validation on it.
func (c controller) readInput(r *http.Request, dst any) error {
	if err := rest.ReadJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	if validationErrors, ok := c.validate.Validate(dst); !ok {
		return fmt.Errorf("%w: %s", domain.ErrValidation, validator.Message(validationErrors))
	}

	return nil
}

// broadcastRoomUpdate tells live subscribers about a membership change.
func (c controller) broadcastRoomUpdate(ctx context.Context, r domain.Room) {
	if err := c.hub.Publish(ctx, domain.ChannelName(r.RoomId), domain.EventRoomUpdate, domain.RoomUpdateFromRoom(r)); err != nil {
		c.logger.WarnContext(ctx, "failed to broadcast room update", "room_id", r.RoomId, "error", err)
	}
}

type roomMemberInput struct {
	RoomId string `json:"roomId" validate:"required,max=64,excludesall=:*?[]\\"`
	UserId string `json:"userId" validate:"required,max=128"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input roomMemberInput
	if err := c.readInput(r, &input); err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	created, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		RoomId: input.RoomId,
		UserId: input.UserId,
	})
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"success": true, "room": created})
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	var input roomMemberInput
	if err := c.readInput(r, &input); err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	joined, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		RoomId: input.RoomId,
		UserId: input.UserId,
	})
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.broadcastRoomUpdate(r.Context(), joined)
	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"success": true, "room": joined})
}

func (c controller) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var input roomMemberInput
	if err := c.readInput(r, &input); err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	leaveResp, err := c.roomService.LeaveRoom(r.Context(), &room.LeaveRoomParams{
		RoomId: input.RoomId,
		UserId: input.UserId,
	})
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	if !leaveResp.IsRoomDeleted {
		c.broadcastRoomUpdate(r.Context(), leaveResp.Room)
	}
	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"success": true})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	found, err := c.roomService.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"room": found})
}

type sendMessageInput struct {
	RoomId   string `json:"roomId" validate:"required,max=64,excludesall=:*?[]\\"`
	UserId   string `json:"userId" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=64"`
	Text     string `json:"text" validate:"required"`
}

func (c controller) sendMessage(w http.ResponseWriter, r *http.Request) {
	var input sendMessageInput
	if err := c.readInput(r, &input); err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	msg, err := c.roomService.SendMessage(r.Context(), &room.SendMessageParams{
		RoomId:   input.RoomId,
		UserId:   input.UserId,
		Username: input.Username,
		Text:     input.Text,
	})
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"success": true, "message": msg})
}

func (c controller) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := c.roomService.ListMessages(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"messages": messages})
}

type syncVideoInput struct {
	RoomId     string                  `json:"roomId" validate:"required,max=64,excludesall=:*?[]\\"`
	VideoUrl   optional.Field[*string] `json:"videoUrl"`
	VideoState *domain.VideoStatePatch `json:"videoState"`
}

func (c controller) syncVideo(w http.ResponseWriter, r *http.Request) {
	var input syncVideoInput
	if err := c.readInput(r, &input); err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	synced, err := c.roomService.SyncVideo(r.Context(), &room.SyncVideoParams{
		RoomId:     input.RoomId,
		VideoUrl:   input.VideoUrl,
		VideoState: input.VideoState,
	})
	if err != nil {
		c.writeError(r.Context(), w, err)
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, rest.Envelope{"success": true, "room": synced})
}

type videoInfoResponse struct {
	VideoId      string `json:"videoId"`
	EmbedUrl     string `json:"embedUrl"`
	Title        string `json:"title"`
	AuthorName   string `json:"authorName"`
	ThumbnailUrl string `json:"thumbnailUrl"`
}

func (c controller) videoInfoHandler(w http.ResponseWriter, r *http.Request) {
	videoId, err := ytvideodata.ExtractId(r.URL.Query().Get("url"))
	if err != nil {
		c.writeError(r.Context(), w, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	data, err := c.videoInfo.Get(r.Context(), videoId)
	if err != nil {
		if errors.Is(err, ytvideodata.ErrVideoNotFound) {
			c.writeJSON(r.Context(), w, http.StatusNotFound, rest.Envelope{"error": ytvideodata.ErrVideoNotFound.Error()})
			return
		}

		c.logger.WarnContext(r.Context(), "failed to get video data", "video_id", videoId, "error", err)
		c.writeJSON(r.Context(), w, http.StatusBadGateway, rest.Envelope{"error": "failed to get video data"})
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, videoInfoResponse{
		VideoId:      videoId,
		EmbedUrl:     ytvideodata.EmbedUrl(videoId),
		Title:        data.Title,
		AuthorName:   data.AuthorName,
		ThumbnailUrl: data.ThumbnailUrl,
	})
}
