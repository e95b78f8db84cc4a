package models

import "time"

// Chat represents a conversation between exactly two users. Ordinary chats
// are bound to a listing; system chats carry workflow prompts from the
// synthetic system user and have no listing.
type Chat struct {
	ID              int        `db:"id" json:"id"`
	IsSystem        bool       `db:"is_system" json:"is_system_chat"`
	ListingID       *int       `db:"listing_id" json:"listing_id,omitempty"`
	User1ID         int        `db:"user1_id" json:"user1_id"`
	User2ID         int        `db:"user2_id" json:"user2_id"`
	LastMessageText *string    `db:"last_message_text" json:"-"`
	LastMessageAt   *time.Time `db:"last_message_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the user belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Companion returns the other participant for a given user. Falls back to
// user1 when the given user is not a participant.
func (c Chat) Companion(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// LastMessage is the chat summary line shown in chat lists.
type LastMessage struct {
	Text        string     `json:"text"`
	Date        *time.Time `json:"date"`
	UnreadCount int        `json:"unread_count"`
}

// ChatSummary is the enriched per-user view of a chat.
type ChatSummary struct {
	ChatID       int             `json:"chat_id"`
	IsSystemChat bool            `json:"is_system_chat"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastMessage  LastMessage     `json:"last_message"`
	Listing      *ListingPreview `json:"listing"`
	Companion    UserPreview     `json:"companion"`
}
