package invites_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/invites"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

const systemUserID = 1

type summarySourceMock struct {
	mock.Mock
}

func (m *summarySourceMock) ChatSummaries(ctx context.Context, chat models.Chat) (map[int]models.ChatSummary, error) {
	args := m.Called(ctx, chat)
	var summaries map[int]models.ChatSummary
	if val := args.Get(0); val != nil {
		summaries = val.(map[int]models.ChatSummary)
	}
	return summaries, args.Error(1)
}

type engineFixture struct {
	chats     *mocks.ChatRepositoryMock
	messages  *mocks.MessageRepositoryMock
	users     *mocks.UserRepositoryMock
	listings  *mocks.ListingRepositoryMock
	reviews   *mocks.ReviewRepositoryMock
	notifier  *mocks.NotifierMock
	summaries *summarySourceMock
	engine    *invites.Engine
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		chats:     new(mocks.ChatRepositoryMock),
		messages:  new(mocks.MessageRepositoryMock),
		users:     new(mocks.UserRepositoryMock),
		listings:  new(mocks.ListingRepositoryMock),
		reviews:   new(mocks.ReviewRepositoryMock),
		notifier:  new(mocks.NotifierMock),
		summaries: new(summarySourceMock),
	}
	f.engine = invites.NewEngine(f.chats, f.messages, f.users, f.listings, f.reviews, f.notifier, f.summaries, systemUserID, zap.NewNop().Sugar())
	return f
}

func (f *engineFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.chats.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.users.AssertExpectations(t)
	f.listings.AssertExpectations(t)
	f.reviews.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.summaries.AssertExpectations(t)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func pendingInvite(id, chatID, counterpartID int, kind models.InviteKind) models.Message {
	return models.Message{
		ID:                  id,
		ChatID:              chatID,
		SenderID:            systemUserID,
		ActionType:          strPtr(string(kind)),
		ActionCounterpartID: &counterpartID,
	}
}

func TestRemindCreatesPendingInvite(t *testing.T) {
	f := newEngineFixture()
	systemChat := models.Chat{ID: 30, IsSystem: true, User1ID: systemUserID, User2ID: 2}

	f.reviews.On("ExistsRoot", mock.Anything, 2, 5, 7).Return(false, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5, Name: "bob"}, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{ID: 7, Title: "bike"}, nil).Once()
	f.chats.On("Resolve", mock.Anything, systemUserID, 2, (*int)(nil)).Return(systemChat, false, nil).Once()
	f.messages.On("CreateInvite", mock.Anything, mock.MatchedBy(func(p repositories.InviteParams) bool {
		return p.ChatID == 30 && p.Kind == models.InviteLeaveRoot && p.CounterpartID == 5 &&
			p.ListingID != nil && *p.ListingID == 7 && p.TargetID == 2
	})).Return(pendingInvite(50, 30, 5, models.InviteLeaveRoot), true, nil).Once()
	f.users.On("Get", mock.Anything, systemUserID).Return(models.User{ID: systemUserID, Name: "Marketplace"}, nil).Once()
	f.notifier.On("MessageCreated", mock.Anything, systemChat, mock.Anything, mock.Anything, 2).Once()

	require.NoError(t, f.engine.RemindPendingReview(context.Background(), 2, 5, 7))
	f.assertExpectations(t)
}

func TestRemindSkipsWhenAlreadyReviewed(t *testing.T) {
	f := newEngineFixture()
	f.reviews.On("ExistsRoot", mock.Anything, 2, 5, 7).Return(true, nil).Once()

	require.NoError(t, f.engine.RemindPendingReview(context.Background(), 2, 5, 7))
	f.assertExpectations(t)
}

func TestRemindSuppressesDuplicate(t *testing.T) {
	f := newEngineFixture()
	systemChat := models.Chat{ID: 30, IsSystem: true, User1ID: systemUserID, User2ID: 2}

	f.reviews.On("ExistsRoot", mock.Anything, 2, 5, 7).Return(false, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5}, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{ID: 7}, nil).Once()
	f.chats.On("Resolve", mock.Anything, systemUserID, 2, (*int)(nil)).Return(systemChat, false, nil).Once()
	f.messages.On("CreateInvite", mock.Anything, mock.Anything).Return(models.Message{}, false, nil).Once()

	require.NoError(t, f.engine.RemindPendingReview(context.Background(), 2, 5, 7))
	f.assertExpectations(t)
}

func TestRemindJoinsFreshSystemChat(t *testing.T) {
	f := newEngineFixture()
	systemChat := models.Chat{ID: 31, IsSystem: true, User1ID: systemUserID, User2ID: 2}
	invite := pendingInvite(51, 31, 5, models.InviteLeaveRoot)

	f.reviews.On("ExistsRoot", mock.Anything, 2, 5, 7).Return(false, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5}, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{ID: 7}, nil).Once()
	f.chats.On("Resolve", mock.Anything, systemUserID, 2, (*int)(nil)).Return(systemChat, true, nil).Once()
	f.messages.On("CreateInvite", mock.Anything, mock.Anything).Return(invite, true, nil).Once()
	f.users.On("Get", mock.Anything, systemUserID).Return(models.User{ID: systemUserID}, nil).Once()
	f.summaries.On("ChatSummaries", mock.Anything, systemChat).
		Return(map[int]models.ChatSummary{2: {ChatID: 31}, systemUserID: {ChatID: 31}}, nil).Once()
	f.notifier.On("ChatCreated", mock.Anything, systemChat, invite, mock.Anything, mock.Anything).Once()

	require.NoError(t, f.engine.RemindPendingReview(context.Background(), 2, 5, 7))
	f.assertExpectations(t)
}

func TestOnReviewAddedFulfillsAndInvitesReciprocal(t *testing.T) {
	f := newEngineFixture()
	review := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7, Text: "great seller", Rating: intPtr(5)}
	authorChat := models.Chat{ID: 30, IsSystem: true, User1ID: systemUserID, User2ID: 2}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}
	pending := pendingInvite(50, 30, 5, models.InviteLeaveRoot)
	fulfilled := models.Message{ID: 50, ChatID: 30, SenderID: systemUserID, Text: "done"}
	reciprocalInvite := pendingInvite(52, 32, 2, models.InviteLeaveRoot)

	f.users.On("Get", mock.Anything, 2).Return(models.User{ID: 2, Name: "alice"}, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5, Name: "bob"}, nil).Once()

	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 2).Return(authorChat, true, nil).Once()
	f.messages.On("FindPendingInvite", mock.Anything, 30, mock.MatchedBy(func(key repositories.InviteKey) bool {
		return key.CounterpartID == 5 && key.ListingID != nil && *key.ListingID == 7 && key.Kind == nil
	})).Return(pending, true, nil).Once()
	f.messages.On("FulfillInvite", mock.Anything, 50, mock.MatchedBy(func(text string) bool {
		return text != ""
	})).Return(fulfilled, nil).Once()
	f.notifier.On("MessageUpdated", mock.Anything, authorChat, fulfilled).Once()

	f.reviews.On("ExistsRoot", mock.Anything, 5, 2, 7).Return(false, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{ID: 7, Title: "bike"}, nil).Once()
	f.chats.On("Resolve", mock.Anything, systemUserID, 5, (*int)(nil)).Return(targetChat, false, nil).Once()
	f.messages.On("CreateInvite", mock.Anything, mock.MatchedBy(func(p repositories.InviteParams) bool {
		return p.ChatID == 32 && p.Kind == models.InviteLeaveRoot && p.CounterpartID == 2
	})).Return(reciprocalInvite, true, nil).Once()
	f.users.On("Get", mock.Anything, systemUserID).Return(models.User{ID: systemUserID}, nil).Once()
	f.notifier.On("MessageCreated", mock.Anything, targetChat, reciprocalInvite, mock.Anything, 5).Once()

	require.NoError(t, f.engine.OnReviewAdded(context.Background(), review))
	f.assertExpectations(t)
}

func TestOnReviewAddedInvitesReplyWhenReciprocalExists(t *testing.T) {
	f := newEngineFixture()
	review := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7, Text: "ok", Rating: intPtr(4)}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}

	f.users.On("Get", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5}, nil).Once()
	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 2).Return(models.Chat{}, false, nil).Once()

	f.reviews.On("ExistsRoot", mock.Anything, 5, 2, 7).Return(true, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{ID: 7}, nil).Once()
	f.chats.On("Resolve", mock.Anything, systemUserID, 5, (*int)(nil)).Return(targetChat, false, nil).Once()
	f.messages.On("CreateInvite", mock.Anything, mock.MatchedBy(func(p repositories.InviteParams) bool {
		return p.Kind == models.InviteLeaveReply && p.CounterpartID == 2
	})).Return(pendingInvite(52, 32, 2, models.InviteLeaveReply), true, nil).Once()
	f.users.On("Get", mock.Anything, systemUserID).Return(models.User{ID: systemUserID}, nil).Once()
	f.notifier.On("MessageCreated", mock.Anything, targetChat, mock.Anything, mock.Anything, 5).Once()

	require.NoError(t, f.engine.OnReviewAdded(context.Background(), review))
	f.assertExpectations(t)
}

func TestOnReviewRepliedFulfills(t *testing.T) {
	f := newEngineFixture()
	parent := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7}
	reply := models.Review{ID: 71, AuthorID: 5, TargetID: 2, ListingID: 7, ParentID: intPtr(70)}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}
	pending := pendingInvite(52, 32, 2, models.InviteLeaveReply)
	fulfilled := models.Message{ID: 52, ChatID: 32, SenderID: systemUserID, Text: "replied"}

	f.users.On("Get", mock.Anything, 2).Return(models.User{ID: 2, Name: "alice"}, nil).Once()
	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 5).Return(targetChat, true, nil).Once()
	f.messages.On("FindPendingInvite", mock.Anything, 32, mock.MatchedBy(func(key repositories.InviteKey) bool {
		return key.CounterpartID == 2 && key.Kind != nil && *key.Kind == models.InviteLeaveReply
	})).Return(pending, true, nil).Once()
	f.messages.On("FulfillInvite", mock.Anything, 52, mock.Anything).Return(fulfilled, nil).Once()
	f.notifier.On("MessageUpdated", mock.Anything, targetChat, fulfilled).Once()

	require.NoError(t, f.engine.OnReviewReplied(context.Background(), reply, parent))
	f.assertExpectations(t)
}

func TestOnReviewRepliedAlreadyFulfilled(t *testing.T) {
	f := newEngineFixture()
	parent := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7}
	reply := models.Review{ID: 71, AuthorID: 5, TargetID: 2, ListingID: 7, ParentID: intPtr(70)}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}

	f.users.On("Get", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 5).Return(targetChat, true, nil).Once()
	f.messages.On("FindPendingInvite", mock.Anything, 32, mock.Anything).Return(models.Message{}, false, nil).Once()

	require.NoError(t, f.engine.OnReviewReplied(context.Background(), reply, parent))
	f.assertExpectations(t)
}

func TestOnReviewDeletedRemovesPendingReplyInvite(t *testing.T) {
	f := newEngineFixture()
	review := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}
	pending := pendingInvite(52, 32, 2, models.InviteLeaveReply)

	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 5).Return(targetChat, true, nil).Once()
	f.messages.On("FindPendingInvite", mock.Anything, 32, mock.Anything).Return(pending, true, nil).Once()
	f.messages.On("Delete", mock.Anything, 52).Return(nil).Once()
	f.notifier.On("MessageDeleted", mock.Anything, 32, 52).Once()

	require.NoError(t, f.engine.OnReviewDeleted(context.Background(), review))
	f.assertExpectations(t)
}

func TestOnReviewDeletedIgnoresReplies(t *testing.T) {
	f := newEngineFixture()
	reply := models.Review{ID: 71, AuthorID: 5, TargetID: 2, ListingID: 7, ParentID: intPtr(70)}

	require.NoError(t, f.engine.OnReviewDeleted(context.Background(), reply))
	f.assertExpectations(t)
}

func TestOnReviewDeletedKeepsFulfilledInvite(t *testing.T) {
	f := newEngineFixture()
	review := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7}
	targetChat := models.Chat{ID: 32, IsSystem: true, User1ID: systemUserID, User2ID: 5}

	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 5).Return(targetChat, true, nil).Once()
	f.messages.On("FindPendingInvite", mock.Anything, 32, mock.Anything).Return(models.Message{}, false, nil).Once()

	require.NoError(t, f.engine.OnReviewDeleted(context.Background(), review))
	f.assertExpectations(t)
}

func TestRemindSkipsSystemParticipants(t *testing.T) {
	f := newEngineFixture()

	require.NoError(t, f.engine.RemindPendingReview(context.Background(), systemUserID, 5, 7))
	require.NoError(t, f.engine.RemindPendingReview(context.Background(), 2, systemUserID, 7))
	f.assertExpectations(t)
}

func TestOnReviewAddedFailsWhenListingMissing(t *testing.T) {
	f := newEngineFixture()
	review := models.Review{ID: 70, AuthorID: 2, TargetID: 5, ListingID: 7, Text: "ok", Rating: intPtr(4)}

	f.users.On("Get", mock.Anything, 2).Return(models.User{ID: 2}, nil).Once()
	f.users.On("Get", mock.Anything, 5).Return(models.User{ID: 5}, nil).Once()
	f.chats.On("FindSystemPair", mock.Anything, systemUserID, 2).Return(models.Chat{}, false, nil).Once()
	f.reviews.On("ExistsRoot", mock.Anything, 5, 2, 7).Return(false, nil).Once()
	f.listings.On("Get", mock.Anything, 7).Return(models.Listing{}, assert.AnError).Once()

	require.Error(t, f.engine.OnReviewAdded(context.Background(), review))
	f.messages.AssertNotCalled(t, "CreateInvite", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestInviteKindLabels(t *testing.T) {
	assert.Equal(t, "Leave review", models.InviteLeaveRoot.Label())
	assert.Equal(t, "Reply", models.InviteLeaveReply.Label())
}
