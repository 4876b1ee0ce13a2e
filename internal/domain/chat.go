package domain

import "strconv"

type ChatMessage struct {
	UserId    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SameAs compares messages by their dedup key (timestamp, userId).
func (m ChatMessage) SameAs(other ChatMessage) bool {
	return m.Timestamp == other.Timestamp && m.UserId == other.UserId
}

func ChatPrefix(roomId string) string {
	return "chat:" + roomId + ":"
}

func ChatKey(roomId string, timestamp int64) string {
	return ChatPrefix(roomId) + strconv.FormatInt(timestamp, 10)
}
