package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-engine/internal/chat"
	"chat-engine/internal/models"
	"chat-engine/internal/push"
	"chat-engine/internal/repositories"
	"chat-engine/internal/storage"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) Resolve(ctx context.Context, userA, userB int, listingID *int) (models.Chat, bool, error) {
	args := m.Called(ctx, userA, userB, listingID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) FindSystemPair(ctx context.Context, userA, userB int) (models.Chat, bool, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) Get(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) IDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) UnreadForUser(ctx context.Context, userID int) (map[int]int, error) {
	args := m.Called(ctx, userID)
	var counts map[int]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int]int)
	}
	return counts, args.Error(1)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, p repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, chatID, page, limit int) ([]models.Message, int, error) {
	args := m.Called(ctx, chatID, page, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int, text string, media []string) (models.Message, error) {
	args := m.Called(ctx, messageID, text, media)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetReaction(ctx context.Context, messageID int, reaction *string) (models.Message, error) {
	args := m.Called(ctx, messageID, reaction)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkLatestUnread(ctx context.Context, chatID, readerID int) (models.Message, bool, error) {
	args := m.Called(ctx, chatID, readerID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) CreateInvite(ctx context.Context, p repositories.InviteParams) (models.Message, bool, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) FindPendingInvite(ctx context.Context, chatID int, key repositories.InviteKey) (models.Message, bool, error) {
	args := m.Called(ctx, chatID, key)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) FulfillInvite(ctx context.Context, messageID int, newText string) (models.Message, error) {
	args := m.Called(ctx, messageID, newText)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkByIDs(ctx context.Context, ids []int) (map[int]models.User, error) {
	args := m.Called(ctx, ids)
	var users map[int]models.User
	if val := args.Get(0); val != nil {
		users = val.(map[int]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetRating(ctx context.Context, userID int, rating float64) error {
	args := m.Called(ctx, userID, rating)
	return args.Error(0)
}

func (m *UserRepositoryMock) EnsureSystemUser(ctx context.Context, userID int, name string) error {
	args := m.Called(ctx, userID, name)
	return args.Error(0)
}

type ListingRepositoryMock struct {
	mock.Mock
}

func (m *ListingRepositoryMock) Get(ctx context.Context, listingID int) (models.Listing, error) {
	args := m.Called(ctx, listingID)
	var listing models.Listing
	if val := args.Get(0); val != nil {
		listing = val.(models.Listing)
	}
	return listing, args.Error(1)
}

func (m *ListingRepositoryMock) BulkByIDs(ctx context.Context, ids []int) (map[int]models.Listing, error) {
	args := m.Called(ctx, ids)
	var listings map[int]models.Listing
	if val := args.Get(0); val != nil {
		listings = val.(map[int]models.Listing)
	}
	return listings, args.Error(1)
}

type ReviewRepositoryMock struct {
	mock.Mock
}

func (m *ReviewRepositoryMock) Create(ctx context.Context, review models.Review) (models.Review, error) {
	args := m.Called(ctx, review)
	var created models.Review
	if val := args.Get(0); val != nil {
		created = val.(models.Review)
	}
	return created, args.Error(1)
}

func (m *ReviewRepositoryMock) Get(ctx context.Context, reviewID int) (models.Review, error) {
	args := m.Called(ctx, reviewID)
	var review models.Review
	if val := args.Get(0); val != nil {
		review = val.(models.Review)
	}
	return review, args.Error(1)
}

func (m *ReviewRepositoryMock) ListRoots(ctx context.Context, targetID, page, limit int) ([]models.ReviewWithAuthor, int, error) {
	args := m.Called(ctx, targetID, page, limit)
	var items []models.ReviewWithAuthor
	if val := args.Get(0); val != nil {
		items = val.([]models.ReviewWithAuthor)
	}
	return items, args.Int(1), args.Error(2)
}

func (m *ReviewRepositoryMock) RepliesFor(ctx context.Context, rootIDs []int) (map[int][]models.ReviewWithAuthor, error) {
	args := m.Called(ctx, rootIDs)
	var grouped map[int][]models.ReviewWithAuthor
	if val := args.Get(0); val != nil {
		grouped = val.(map[int][]models.ReviewWithAuthor)
	}
	return grouped, args.Error(1)
}

func (m *ReviewRepositoryMock) Delete(ctx context.Context, reviewID int) error {
	args := m.Called(ctx, reviewID)
	return args.Error(0)
}

func (m *ReviewRepositoryMock) AverageRating(ctx context.Context, targetID int) (float64, error) {
	args := m.Called(ctx, targetID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *ReviewRepositoryMock) ExistsRoot(ctx context.Context, authorID, targetID, listingID int) (bool, error) {
	args := m.Called(ctx, authorID, targetID, listingID)
	return args.Bool(0), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) MessageCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, recipientID int) {
	m.Called(ctx, chat, msg, sender, recipientID)
}

func (m *NotifierMock) ChatCreated(ctx context.Context, chat models.Chat, msg models.Message, sender models.UserPreview, summaries map[int]models.ChatSummary) {
	m.Called(ctx, chat, msg, sender, summaries)
}

func (m *NotifierMock) MessageUpdated(ctx context.Context, chat models.Chat, msg models.Message) {
	m.Called(ctx, chat, msg)
}

func (m *NotifierMock) MessageDeleted(ctx context.Context, chatID, messageID int) {
	m.Called(ctx, chatID, messageID)
}

func (m *NotifierMock) ReactionUpdated(ctx context.Context, chat models.Chat, msg models.Message, reactorID int) {
	m.Called(ctx, chat, msg, reactorID)
}

func (m *NotifierMock) MessageRead(ctx context.Context, chatID, messageID, senderID int) {
	m.Called(ctx, chatID, messageID, senderID)
}

func (m *NotifierMock) Typing(chatID, userID int, isTyping bool) {
	m.Called(chatID, userID, isTyping)
}

type PushSenderMock struct {
	mock.Mock
}

func (m *PushSenderMock) Send(ctx context.Context, token, title, body string, data map[string]interface{}) error {
	args := m.Called(ctx, token, title, body, data)
	return args.Error(0)
}

type FileStoreMock struct {
	mock.Mock
}

func (m *FileStoreMock) Release(ctx context.Context, refs []string) error {
	args := m.Called(ctx, refs)
	return args.Error(0)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ repositories.ChatRepository    = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ repositories.ListingRepository = (*ListingRepositoryMock)(nil)
	_ repositories.ReviewRepository  = (*ReviewRepositoryMock)(nil)
	_ chat.Notifier                  = (*NotifierMock)(nil)
	_ push.Sender                    = (*PushSenderMock)(nil)
	_ storage.FileStore              = (*FileStoreMock)(nil)
)
