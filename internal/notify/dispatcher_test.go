package notify_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/notify"
	"chat-engine/internal/ws"
)

type stubConn struct {
	mu     sync.Mutex
	events []string
}

func (c *stubConn) WriteMessage(messageType int, data []byte) error {
	var f struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, f.Event)
	return nil
}

func (c *stubConn) Close() error {
	return nil
}

func (c *stubConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

type dispatcherFixture struct {
	hub       *ws.Hub
	pusher    *mocks.PushSenderMock
	publisher *mocks.PublisherMock
	users     *mocks.UserRepositoryMock
	disp      *notify.Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		hub:       ws.NewHub(zap.NewNop().Sugar()),
		pusher:    new(mocks.PushSenderMock),
		publisher: new(mocks.PublisherMock),
		users:     new(mocks.UserRepositoryMock),
	}
	f.disp = notify.NewDispatcher(f.hub, f.pusher, f.publisher, f.users, zap.NewNop().Sugar())
	return f
}

func (f *dispatcherFixture) connect(userID int, rooms ...string) *stubConn {
	conn := &stubConn{}
	client := f.hub.Register(conn, ws.ConnInfo{ConnID: "test", UserID: userID})
	f.hub.Join(client, ws.RoomForUser(userID))
	for _, room := range rooms {
		f.hub.Join(client, room)
	}
	return conn
}

func strPtr(v string) *string { return &v }

func TestMessageCreatedBroadcastsWithoutPush(t *testing.T) {
	f := newDispatcherFixture()
	recipient := f.connect(5, ws.RoomForChat(10))

	f.publisher.On("Publish", mock.Anything, "chat_events.message.created", mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	f.disp.MessageCreated(context.Background(), room, msg, models.UserPreview{ID: 2, Name: "alice"}, 5)

	assert.Equal(t, []string{"new_message"}, recipient.received())
	f.pusher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertExpectations(t)
}

func TestMessageCreatedFallsBackToPush(t *testing.T) {
	f := newDispatcherFixture()

	f.users.On("Get", mock.Anything, 5).
		Return(models.User{ID: 5, Name: "bob", PushToken: strPtr("ExponentPushToken[x]")}, nil).Once()
	f.pusher.On("Send", mock.Anything, "ExponentPushToken[x]", "alice", "hello", mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, "chat_events.message.created", mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	f.disp.MessageCreated(context.Background(), room, msg, models.UserPreview{ID: 2, Name: "alice"}, 5)

	f.users.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestMessageCreatedSkipsPushWithoutToken(t *testing.T) {
	f := newDispatcherFixture()

	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5, Name: "bob"}, nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	f.disp.MessageCreated(context.Background(), room, msg, models.UserPreview{ID: 2, Name: "alice"}, 5)

	f.pusher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.users.AssertExpectations(t)
}

func TestChatCreatedJoinsRoomBeforeEmitting(t *testing.T) {
	f := newDispatcherFixture()
	sender := f.connect(2)
	recipient := f.connect(5)

	f.publisher.On("Publish", mock.Anything, "chat_events.chat.created", mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	summaries := map[int]models.ChatSummary{2: {ChatID: 10}, 5: {ChatID: 10}}
	f.disp.ChatCreated(context.Background(), room, msg, models.UserPreview{ID: 2, Name: "alice"}, summaries)

	// Both participants' connections are in the chat room before any chat
	// event could mention it.
	assert.Equal(t, 2, f.hub.RoomSize(ws.RoomForChat(10)))
	assert.Equal(t, []string{"new_chat"}, sender.received())
	assert.Equal(t, []string{"new_chat"}, recipient.received())
	f.pusher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertExpectations(t)
}

func TestChatCreatedPushesToOfflineRecipient(t *testing.T) {
	f := newDispatcherFixture()
	f.connect(2)

	f.users.On("Get", mock.Anything, 5).
		Return(models.User{ID: 5, PushToken: strPtr("tok")}, nil).Once()
	f.pusher.On("Send", mock.Anything, "tok", "alice", "hello", mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	f.disp.ChatCreated(context.Background(), room, msg, models.UserPreview{ID: 2, Name: "alice"},
		map[int]models.ChatSummary{2: {ChatID: 10}, 5: {ChatID: 10}})

	f.pusher.AssertExpectations(t)
}

func TestPushFailureStaysNonFatal(t *testing.T) {
	f := newDispatcherFixture()

	f.users.On("Get", mock.Anything, 5).
		Return(models.User{ID: 5, PushToken: strPtr("tok")}, nil).Once()
	f.pusher.On("Send", mock.Anything, "tok", mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Text: "hello"}
	f.disp.MessageCreated(context.Background(), room, msg, models.UserPreview{ID: 2}, 5)

	f.pusher.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestTypingSkipsTypist(t *testing.T) {
	f := newDispatcherFixture()
	typist := f.connect(2, ws.RoomForChat(10))
	reader := f.connect(5, ws.RoomForChat(10))

	f.disp.Typing(10, 2, true)

	assert.Empty(t, typist.received())
	assert.Equal(t, []string{"typing"}, reader.received())
}

func TestMessageReadReachesSenderRoom(t *testing.T) {
	f := newDispatcherFixture()
	sender := f.connect(2)
	reader := f.connect(5)

	f.publisher.On("Publish", mock.Anything, "chat_events.message.read", mock.Anything).Return(nil).Once()

	f.disp.MessageRead(context.Background(), 10, 42, 2)

	assert.Equal(t, []string{"message_read"}, sender.received())
	assert.Empty(t, reader.received())
	f.publisher.AssertExpectations(t)
}

func TestMessageDeletedBroadcasts(t *testing.T) {
	f := newDispatcherFixture()
	member := f.connect(5, ws.RoomForChat(10))

	f.publisher.On("Publish", mock.Anything, "chat_events.message.deleted", mock.Anything).Return(nil).Once()

	f.disp.MessageDeleted(context.Background(), 10, 42)

	assert.Equal(t, []string{"message_deleted"}, member.received())
	f.publisher.AssertExpectations(t)
}

func TestReactionUpdatedBroadcasts(t *testing.T) {
	f := newDispatcherFixture()
	member := f.connect(2, ws.RoomForChat(10))

	f.publisher.On("Publish", mock.Anything, "chat_events.reaction.updated", mock.Anything).Return(nil).Once()

	room := models.Chat{ID: 10, User1ID: 2, User2ID: 5}
	msg := models.Message{ID: 42, ChatID: 10, SenderID: 2, Reaction: strPtr("❤️")}
	f.disp.ReactionUpdated(context.Background(), room, msg, 5)

	require.Equal(t, []string{"reaction_updated"}, member.received())
	f.publisher.AssertExpectations(t)
}
