package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
	"chat-engine/internal/storage"
)

// mediaPlaceholder replaces an empty text in chat summaries when a message
// carries only media.
const mediaPlaceholder = "[Images]"

// Notifier receives the state-change events the service produces after
// persistence. Implementations must never fail the triggering operation;
// delivery problems are theirs to swallow.
type Notifier interface {
	MessageCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, recipientID int)
	ChatCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, summaries map[int]models.ChatSummary)
	MessageUpdated(ctx context.Context, chat models.Chat, msg models.Message)
	MessageDeleted(ctx context.Context, chatID, messageID int)
	ReactionUpdated(ctx context.Context, chat models.Chat, msg models.Message, reactorID int)
	MessageRead(ctx context.Context, chatID, messageID, senderID int)
	Typing(chatID, userID int, isTyping bool)
}

// Service owns the message lifecycle: chat resolution, send, edit, delete,
// reactions, read receipts and typing fanout.
type Service struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	listings repositories.ListingRepository
	files    storage.FileStore
	notifier Notifier

	systemUserID int
	log          *zap.SugaredLogger
}

// NewService wires the message lifecycle service.
func NewService(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	listings repositories.ListingRepository,
	files storage.FileStore,
	notifier Notifier,
	systemUserID int,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		chats:        chats,
		messages:     messages,
		users:        users,
		listings:     listings,
		files:        files,
		notifier:     notifier,
		systemUserID: systemUserID,
		log:          log,
	}
}

// SystemUserID exposes the synthetic system participant id.
func (s *Service) SystemUserID() int {
	return s.systemUserID
}

// SendInput describes a send_message request. Either ChatID or
// (RecipientID, ListingID) identifies the conversation; a system-chat send
// omits the listing.
type SendInput struct {
	ChatID      *int
	ListingID   *int
	RecipientID int
	Text        string
	Media       []string
	MediaType   string
	ReplyTo     *int
}

// SendResult is the caller-visible outcome of a send.
type SendResult struct {
	Message   models.Message
	ChatID    int
	IsNewChat bool
}

// Send validates the request, persists the message with its chat summary
// update and hands the event to the notifier. For a newly created chat the
// notifier receives per-participant summaries instead of the room event.
func (s *Service) Send(ctx context.Context, senderID int, in SendInput) (SendResult, error) {
	chat, wasCreated, recipientID, err := s.resolveForSend(ctx, senderID, in)
	if err != nil {
		return SendResult{}, err
	}

	if in.ReplyTo != nil {
		target, err := s.messages.Get(ctx, *in.ReplyTo)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return SendResult{}, fmt.Errorf("reply target: %w", ErrNotFound)
		}
		if err != nil {
			return SendResult{}, err
		}
		if target.ChatID != chat.ID {
			return SendResult{}, ErrInvalidReference
		}
	}

	summaryText := in.Text
	if summaryText == "" && len(in.Media) > 0 {
		summaryText = mediaPlaceholder
	}

	msg, err := s.messages.Create(ctx, repositories.CreateMessageParams{
		ChatID:      chat.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        in.Text,
		Media:       in.Media,
		MediaType:   in.MediaType,
		ReplyTo:     in.ReplyTo,
		SummaryText: summaryText,
	})
	if err != nil {
		return SendResult{}, err
	}

	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return SendResult{}, s.mapUserErr(err)
	}

	if wasCreated {
		summaries, err := s.summariesFor(ctx, chat, senderID, recipientID)
		if err != nil {
			s.log.Warnw("enrich new chat failed", "chat_id", chat.ID, "error", err)
			summaries = map[int]models.ChatSummary{}
		}
		s.notifier.ChatCreated(ctx, chat, msg, sender.Preview(), summaries)
	} else {
		s.notifier.MessageCreated(ctx, chat, msg, sender.Preview(), recipientID)
	}

	return SendResult{Message: msg, ChatID: chat.ID, IsNewChat: wasCreated}, nil
}

func (s *Service) resolveForSend(ctx context.Context, senderID int, in SendInput) (models.Chat, bool, int, error) {
	if in.ChatID != nil {
		chat, err := s.chats.Get(ctx, *in.ChatID)
		if errors.Is(err, repositories.ErrChatNotFound) {
			return models.Chat{}, false, 0, fmt.Errorf("chat %d: %w", *in.ChatID, ErrNotFound)
		}
		if err != nil {
			return models.Chat{}, false, 0, err
		}
		if !chat.HasParticipant(senderID) {
			return models.Chat{}, false, 0, ErrForbidden
		}
		return chat, false, chat.Companion(senderID), nil
	}

	if in.RecipientID == 0 || in.RecipientID == senderID {
		return models.Chat{}, false, 0, fmt.Errorf("recipient: %w", ErrInvalidInput)
	}
	if _, err := s.users.Get(ctx, in.RecipientID); err != nil {
		return models.Chat{}, false, 0, s.mapUserErr(err)
	}

	systemChat := senderID == s.systemUserID || in.RecipientID == s.systemUserID
	if !systemChat {
		if in.ListingID == nil {
			return models.Chat{}, false, 0, fmt.Errorf("listing required: %w", ErrInvalidInput)
		}
		if _, err := s.listings.Get(ctx, *in.ListingID); err != nil {
			if errors.Is(err, repositories.ErrListingNotFound) {
				return models.Chat{}, false, 0, fmt.Errorf("listing %d: %w", *in.ListingID, ErrNotFound)
			}
			return models.Chat{}, false, 0, err
		}
	}

	var listingID *int
	if !systemChat {
		listingID = in.ListingID
	}
	chat, wasCreated, err := s.chats.Resolve(ctx, senderID, in.RecipientID, listingID)
	if err != nil {
		return models.Chat{}, false, 0, err
	}
	return chat, wasCreated, in.RecipientID, nil
}

// Edit applies a sender-only edit. An edit with no delta fails with
// ErrNoChange; removed media references are released through the file
// collaborator.
func (s *Service) Edit(ctx context.Context, editorID, messageID int, newText *string, newMedia []string) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != editorID {
		return models.Message{}, ErrForbidden
	}

	text := msg.Text
	if newText != nil {
		text = *newText
	}
	media := []string(msg.Media)
	if newMedia != nil {
		media = newMedia
	}

	if text == msg.Text && equalMedia(media, msg.Media) {
		return models.Message{}, ErrNoChange
	}

	updated, err := s.messages.UpdateContent(ctx, messageID, text, media)
	if err != nil {
		return models.Message{}, err
	}

	// Release removed attachments only once the edit is durable.
	if removed := removedMedia(msg.Media, media); len(removed) > 0 {
		if err := s.files.Release(ctx, removed); err != nil {
			s.log.Warnw("release removed media failed", "message_id", messageID, "error", err)
		}
	}

	chat, err := s.chats.Get(ctx, updated.ChatID)
	if err != nil {
		return models.Message{}, err
	}
	s.notifier.MessageUpdated(ctx, chat, updated)
	return updated, nil
}

// Delete hard-removes a sender's own message. The chat summary is not
// rewritten; it may stay stale until the next send.
func (s *Service) Delete(ctx context.Context, requesterID, messageID int) error {
	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return ErrForbidden
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	s.notifier.MessageDeleted(ctx, msg.ChatID, messageID)
	return nil
}

// React sets or clears the single reaction slot. Only a participant other
// than the sender may react.
func (s *Service) React(ctx context.Context, reactorID, messageID int, reaction *string) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return models.Message{}, err
	}

	chat, err := s.chats.Get(ctx, msg.ChatID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID == reactorID || !chat.HasParticipant(reactorID) {
		return models.Message{}, ErrForbidden
	}

	updated, err := s.messages.SetReaction(ctx, messageID, reaction)
	if err != nil {
		return models.Message{}, err
	}
	s.notifier.ReactionUpdated(ctx, chat, updated, reactorID)
	return updated, nil
}

// MarkRead resets the reader's unread counter and flips the newest unread
// message not authored by the reader, notifying its sender.
func (s *Service) MarkRead(ctx context.Context, chatID, readerID int) error {
	chat, err := s.chats.Get(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !chat.HasParticipant(readerID) {
		return ErrForbidden
	}

	if err := s.chats.ResetUnread(ctx, chatID, readerID); err != nil {
		return err
	}

	msg, flipped, err := s.messages.MarkLatestUnread(ctx, chatID, readerID)
	if err != nil {
		return err
	}
	if flipped {
		s.notifier.MessageRead(ctx, chatID, msg.ID, msg.SenderID)
	}
	return nil
}

// Typing fans the transient typing indicator out to the other room members.
// Only a participant may signal; anything else is dropped.
func (s *Service) Typing(ctx context.Context, chatID, userID int, isTyping bool) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil || !chat.HasParticipant(userID) {
		return
	}
	s.notifier.Typing(chatID, userID, isTyping)
}

// ChatList is the get_user_chats response.
type ChatList struct {
	Chats       []models.ChatSummary
	TotalUnread int
}

// ListChats returns the user's enriched chat summaries plus the total unread
// count across them.
func (s *Service) ListChats(ctx context.Context, userID int) (ChatList, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return ChatList{}, err
	}

	companionIDs := make([]int, 0, len(chats))
	listingIDs := make([]int, 0, len(chats))
	for _, c := range chats {
		companionIDs = append(companionIDs, c.Companion(userID))
		if c.ListingID != nil {
			listingIDs = append(listingIDs, *c.ListingID)
		}
	}

	users, err := s.users.BulkByIDs(ctx, companionIDs)
	if err != nil {
		return ChatList{}, err
	}
	listings, err := s.listings.BulkByIDs(ctx, listingIDs)
	if err != nil {
		return ChatList{}, err
	}
	unread, err := s.chats.UnreadForUser(ctx, userID)
	if err != nil {
		return ChatList{}, err
	}

	list := ChatList{Chats: make([]models.ChatSummary, 0, len(chats))}
	for _, c := range chats {
		summary := buildSummary(c, userID, users[c.Companion(userID)], listings, unread[c.ID])
		list.Chats = append(list.Chats, summary)
		list.TotalUnread += summary.LastMessage.UnreadCount
	}
	return list, nil
}

// MessagePage is the get_messages response.
type MessagePage struct {
	Messages   []models.Message
	Total      int
	Page       int
	TotalPages int
}

// Messages returns one page of chat history, newest first. The caller must
// be a participant.
func (s *Service) Messages(ctx context.Context, userID, chatID, page, limit int) (MessagePage, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return MessagePage{}, fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return MessagePage{}, err
	}
	if !chat.HasParticipant(userID) {
		return MessagePage{}, ErrForbidden
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	msgs, total, err := s.messages.ListPage(ctx, chatID, page, limit)
	if err != nil {
		return MessagePage{}, err
	}

	totalPages := (total + limit - 1) / limit
	return MessagePage{Messages: msgs, Total: total, Page: page, TotalPages: totalPages}, nil
}

// ChatIDsForUser lists the chats whose rooms a connecting user must join.
func (s *Service) ChatIDsForUser(ctx context.Context, userID int) ([]int, error) {
	return s.chats.IDsForUser(ctx, userID)
}

// ChatSummaries builds the per-participant summaries used by new_chat fanout.
// The invite engine needs them when an invite brings a system chat into
// existence.
func (s *Service) ChatSummaries(ctx context.Context, chat models.Chat) (map[int]models.ChatSummary, error) {
	return s.summariesFor(ctx, chat, chat.User1ID, chat.User2ID)
}

func (s *Service) summariesFor(ctx context.Context, chat models.Chat, userA, userB int) (map[int]models.ChatSummary, error) {
	users, err := s.users.BulkByIDs(ctx, []int{userA, userB})
	if err != nil {
		return nil, err
	}
	listings := map[int]models.Listing{}
	if chat.ListingID != nil {
		listings, err = s.listings.BulkByIDs(ctx, []int{*chat.ListingID})
		if err != nil {
			return nil, err
		}
	}

	summaries := map[int]models.ChatSummary{}
	for _, userID := range []int{userA, userB} {
		unread, err := s.chats.UnreadCount(ctx, chat.ID, userID)
		if err != nil {
			return nil, err
		}
		summaries[userID] = buildSummary(chat, userID, users[chat.Companion(userID)], listings, unread)
	}
	return summaries, nil
}

func buildSummary(chat models.Chat, userID int, companion models.User, listings map[int]models.Listing, unread int) models.ChatSummary {
	summary := models.ChatSummary{
		ChatID:       chat.ID,
		IsSystemChat: chat.IsSystem,
		UpdatedAt:    chat.UpdatedAt,
		LastMessage: models.LastMessage{
			Date:        chat.LastMessageAt,
			UnreadCount: unread,
		},
		Companion: companion.Preview(),
	}
	if chat.LastMessageText != nil {
		summary.LastMessage.Text = *chat.LastMessageText
	}
	if chat.ListingID != nil {
		if listing, ok := listings[*chat.ListingID]; ok {
			preview := listing.Preview()
			summary.Listing = &preview
		}
	}
	return summary
}

func (s *Service) mapUserErr(err error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return err
}

func equalMedia(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func removedMedia(old []string, current []string) []string {
	kept := make(map[string]bool, len(current))
	for _, ref := range current {
		kept[ref] = true
	}
	var removed []string
	for _, ref := range old {
		if !kept[ref] {
			removed = append(removed, ref)
		}
	}
	return removed
}
