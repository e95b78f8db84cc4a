package notify

import (
	"context"

	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/push"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/repositories"
	"chat-engine/internal/ws"
)

// Dispatcher turns persisted state changes into websocket fanout, push
// fallback and backplane publishes. Every delivery path is best effort; a
// failure here never reaches the operation that triggered it.
type Dispatcher struct {
	hub       *ws.Hub
	pusher    push.Sender
	publisher rabbitmq.Publisher
	users     repositories.UserRepository
	log       *zap.SugaredLogger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(
	hub *ws.Hub,
	pusher push.Sender,
	publisher rabbitmq.Publisher,
	users repositories.UserRepository,
	log *zap.SugaredLogger,
) *Dispatcher {
	return &Dispatcher{
		hub:       hub,
		pusher:    pusher,
		publisher: publisher,
		users:     users,
		log:       log,
	}
}

// MessageCreated broadcasts new_message to the chat room and falls back to a
// push notification when the recipient has no connection in it.
func (d *Dispatcher) MessageCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, recipientID int) {
	room := ws.RoomForChat(chat.ID)
	d.emit(room, models.EventNewMessage, newMessageEvent(msg, sender))

	if !d.hub.UserInRoom(recipientID, room) {
		d.pushFallback(ctx, recipientID, sender.Name, pushBody(msg))
	}

	d.publish(ctx, "chat_events.message.created", newMessageEvent(msg, sender))
}

// ChatCreated joins both participants' live connections to the chat room
// before any event mentioning the chat is emitted, then delivers new_chat to
// each participant's private room with their own enriched summary.
func (d *Dispatcher) ChatCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, summaries map[int]models.ChatSummary) {
	room := ws.RoomForChat(chat.ID)
	d.hub.JoinUser(chat.User1ID, room)
	d.hub.JoinUser(chat.User2ID, room)

	for _, userID := range []int{chat.User1ID, chat.User2ID} {
		event := models.NewChatEvent{Chat: summaries[userID], Message: msg}
		d.emit(ws.RoomForUser(userID), models.EventNewChat, event)
	}

	recipientID := chat.Companion(msg.SenderID)
	if !d.hub.UserInRoom(recipientID, room) {
		d.pushFallback(ctx, recipientID, sender.Name, pushBody(msg))
	}

	d.publish(ctx, "chat_events.chat.created", models.NewChatEvent{Chat: summaries[recipientID], Message: msg})
}

// MessageUpdated broadcasts message_updated to the chat room. Also emitted
// when an invite reaches its terminal state.
func (d *Dispatcher) MessageUpdated(ctx context.Context, chat models.Chat, msg models.Message) {
	event := models.MessageUpdatedEvent{
		ChatID:    chat.ID,
		MessageID: msg.ID,
		Text:      msg.Text,
		Media:     msg.Media,
		IsChanged: msg.IsChanged,
		Action:    msg.Action(),
	}
	d.emit(ws.RoomForChat(chat.ID), models.EventMessageUpdated, event)
	d.publish(ctx, "chat_events.message.updated", event)
}

// MessageDeleted broadcasts message_deleted to the chat room.
func (d *Dispatcher) MessageDeleted(ctx context.Context, chatID, messageID int) {
	event := models.MessageDeletedEvent{ChatID: chatID, MessageID: messageID}
	d.emit(ws.RoomForChat(chatID), models.EventMessageDeleted, event)
	d.publish(ctx, "chat_events.message.deleted", event)
}

// ReactionUpdated broadcasts reaction_updated to the chat room.
func (d *Dispatcher) ReactionUpdated(ctx context.Context, chat models.Chat, msg models.Message, reactorID int) {
	event := models.ReactionUpdatedEvent{
		ChatID:    chat.ID,
		MessageID: msg.ID,
		Reaction:  msg.Reaction,
		UserID:    reactorID,
	}
	d.emit(ws.RoomForChat(chat.ID), models.EventReactionUpdated, event)
	d.publish(ctx, "chat_events.reaction.updated", event)
}

// MessageRead tells the message sender their message was read. Delivered to
// the sender's private room so every device updates.
func (d *Dispatcher) MessageRead(ctx context.Context, chatID, messageID, senderID int) {
	event := models.MessageReadEvent{ChatID: chatID, MessageID: messageID}
	d.emit(ws.RoomForUser(senderID), models.EventMessageRead, event)
	d.publish(ctx, "chat_events.message.read", event)
}

// Typing fans the indicator out to the room, skipping the typist. Transient;
// never persisted, never pushed, never published.
func (d *Dispatcher) Typing(chatID, userID int, isTyping bool) {
	event := models.TypingEvent{ChatID: chatID, UserID: userID, IsTyping: isTyping}
	d.hub.EmitExceptUser(ws.RoomForChat(chatID), userID, models.EventTyping, event)
	observability.IncWSEvent("chat", models.EventTyping)
}

func (d *Dispatcher) emit(room, event string, payload interface{}) {
	d.hub.Emit(room, event, payload)
	observability.IncWSEvent("chat", event)
}

func (d *Dispatcher) pushFallback(ctx context.Context, recipientID int, title, body string) {
	recipient, err := d.users.Get(ctx, recipientID)
	if err != nil {
		d.log.Warnw("push fallback: load recipient failed", "user_id", recipientID, "error", err)
		observability.IncPush("error")
		return
	}
	if recipient.PushToken == nil || *recipient.PushToken == "" {
		observability.IncPush("no_token")
		return
	}

	if err := d.pusher.Send(ctx, *recipient.PushToken, title, body, nil); err != nil {
		d.log.Warnw("push delivery failed", "user_id", recipientID, "error", err)
		observability.IncPush("error")
		return
	}
	observability.IncPush("ok")
}

func (d *Dispatcher) publish(ctx context.Context, routingKey string, event interface{}) {
	if err := d.publisher.Publish(ctx, routingKey, event); err != nil {
		observability.IncAMQPPublishError()
	}
}

func newMessageEvent(msg models.Message, sender models.UserPreview) models.NewMessageEvent {
	return models.NewMessageEvent{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Sender:    sender,
		Text:      msg.Text,
		Media:     msg.Media,
		MediaType: msg.MediaType,
		ReplyTo:   msg.ReplyTo,
		IsRead:    msg.IsRead,
		IsChanged: msg.IsChanged,
		Action:    msg.Action(),
		CreatedAt: msg.CreatedAt,
	}
}

func pushBody(msg models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	if len(msg.Media) > 0 {
		return "[Images]"
	}
	return "New message"
}
