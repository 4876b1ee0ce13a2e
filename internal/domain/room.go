package domain

import "golang.org/x/exp/slices"

type VideoState struct {
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"currentTime"`
}

// VideoStatePatch is a partial VideoState; nil fields are left untouched on merge.
type VideoStatePatch struct {
	Playing     *bool    `json:"playing,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
}

func (s VideoState) Merge(patch VideoStatePatch) VideoState {
	if patch.Playing != nil {
		s.Playing = *patch.Playing
	}
	if patch.CurrentTime != nil {
		s.CurrentTime = *patch.CurrentTime
	}

	return s
}

type Room struct {
	RoomId     string     `json:"roomId"`
	CreatedAt  int64      `json:"createdAt"`
	Users      []string   `json:"users"`
	VideoUrl   *string    `json:"videoUrl"`
	VideoState VideoState `json:"videoState"`
	Version    int64      `json:"version"`
}

func NewRoom(roomId, userId string, createdAt int64) Room {
	return Room{
		RoomId:     roomId,
		CreatedAt:  createdAt,
		Users:      []string{userId},
		VideoUrl:   nil,
		VideoState: VideoState{Playing: false, CurrentTime: 0},
		Version:    1,
	}
}

func (r Room) HasUser(userId string) bool {
	return slices.Contains(r.Users, userId)
}

// Clone returns a copy that shares no slices or pointers with r.
func (r Room) Clone() Room {
	c := r
	c.Users = slices.Clone(r.Users)
	if r.VideoUrl != nil {
		url := *r.VideoUrl
		c.VideoUrl = &url
	}

	return c
}

func RoomKey(roomId string) string {
	return "room:" + roomId
}

// ChannelName is the realtime channel a room's events are broadcast on.
func ChannelName(roomId string) string {
	return "room:" + roomId
}
