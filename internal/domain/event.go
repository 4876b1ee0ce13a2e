package domain

type EventKind string

const (
	EventRoomUpdate  EventKind = "room-update"
	EventChatMessage EventKind = "chat-message"
)

func (k EventKind) Valid() bool {
	return k == EventRoomUpdate || k == EventChatMessage
}

// RoomUpdate is the room-update payload. Absent fields carry no information.
type RoomUpdate struct {
	VideoUrl *string  `json:"videoUrl,omitempty"`
	Users    []string `json:"users,omitempty"`
	Version  int64    `json:"version,omitempty"`
}

func RoomUpdateFromRoom(r Room) RoomUpdate {
	return RoomUpdate{
		VideoUrl: r.VideoUrl,
		Users:    r.Users,
		Version:  r.Version,
	}
}
