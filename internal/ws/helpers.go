package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// RoomForUser names the private room every connection of a user joins.
func RoomForUser(userID int) string {
	return "user:" + strconv.Itoa(userID)
}

// RoomForChat names the fanout room for a chat.
func RoomForChat(chatID int) string {
	return "chat:" + strconv.Itoa(chatID)
}
