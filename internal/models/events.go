package models

import "time"

// Server-to-client event names.
const (
	EventNewMessage      = "new_message"
	EventNewChat         = "new_chat"
	EventMessageUpdated  = "message_updated"
	EventMessageDeleted  = "message_deleted"
	EventReactionUpdated = "reaction_updated"
	EventMessageRead     = "message_read"
	EventTyping          = "typing"
)

// NewMessageEvent is broadcast to a chat room when a message is created.
type NewMessageEvent struct {
	ChatID    int            `json:"chat_id"`
	MessageID int            `json:"message_id"`
	Sender    UserPreview    `json:"sender"`
	Text      string         `json:"text"`
	Media     []string       `json:"media"`
	MediaType string         `json:"media_type"`
	ReplyTo   *int           `json:"reply_to,omitempty"`
	IsRead    bool           `json:"is_read"`
	IsChanged bool           `json:"is_changed"`
	Action    *MessageAction `json:"action"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewChatEvent is delivered to each participant's private room when a chat
// comes into existence. The summary is enriched for that participant.
type NewChatEvent struct {
	Chat    ChatSummary `json:"chat"`
	Message Message     `json:"message"`
}

// MessageUpdatedEvent is broadcast after an edit or an invite fulfillment.
type MessageUpdatedEvent struct {
	ChatID    int            `json:"chat_id"`
	MessageID int            `json:"message_id"`
	Text      string         `json:"text"`
	Media     []string       `json:"media"`
	IsChanged bool           `json:"is_changed"`
	Action    *MessageAction `json:"action"`
}

// MessageDeletedEvent is broadcast after a hard delete.
type MessageDeletedEvent struct {
	ChatID    int `json:"chat_id"`
	MessageID int `json:"message_id"`
}

// ReactionUpdatedEvent is broadcast when a reaction is set or cleared.
type ReactionUpdatedEvent struct {
	ChatID    int     `json:"chat_id"`
	MessageID int     `json:"message_id"`
	Reaction  *string `json:"reaction"`
	UserID    int     `json:"user_id"`
}

// MessageReadEvent tells the original sender their message was read.
type MessageReadEvent struct {
	ChatID    int `json:"chat_id"`
	MessageID int `json:"message_id"`
}

// TypingEvent is the transient typing indicator.
type TypingEvent struct {
	ChatID   int  `json:"chat_id"`
	UserID   int  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}
