package invites

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chat-engine/internal/chat"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
)

// SummarySource builds per-participant chat summaries for new_chat fanout.
// Satisfied by the chat service.
type SummarySource interface {
	ChatSummaries(ctx context.Context, chat models.Chat) (map[int]models.ChatSummary, error)
}

// Engine drives the system invite state machine. Invites live as
// action-bearing messages in a user's system chat and move
// NONE -> PENDING -> FULFILLED exactly once; duplicates are suppressed at the
// database and fulfilled invites are never reopened.
type Engine struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	listings repositories.ListingRepository
	reviews  repositories.ReviewRepository

	notifier  chat.Notifier
	summaries SummarySource

	systemUserID int
	log          *zap.SugaredLogger
}

// NewEngine wires the invite engine.
func NewEngine(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	listings repositories.ListingRepository,
	reviews repositories.ReviewRepository,
	notifier chat.Notifier,
	summaries SummarySource,
	systemUserID int,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		chats:        chats,
		messages:     messages,
		users:        users,
		listings:     listings,
		reviews:      reviews,
		notifier:     notifier,
		summaries:    summaries,
		systemUserID: systemUserID,
		log:          log,
	}
}

// RemindPendingReview plants a leave-review invite in the actor's system chat
// after a completed deal. Skipped when the actor already reviewed the
// counterpart for the listing; repeated calls collapse into the one pending
// invite.
func (e *Engine) RemindPendingReview(ctx context.Context, actorID, counterpartID int, listingID int) error {
	if actorID == e.systemUserID || counterpartID == e.systemUserID {
		return nil
	}

	exists, err := e.reviews.ExistsRoot(ctx, actorID, counterpartID, listingID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	counterpart, err := e.users.Get(ctx, counterpartID)
	if err != nil {
		return err
	}
	listing, err := e.listings.Get(ctx, listingID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("How did your deal with %s go? Leave a review.", counterpart.Name)
	return e.createInvite(ctx, actorID, counterpart, &listing, models.InviteLeaveRoot, text)
}

// OnReviewAdded reacts to a freshly persisted root review. The author's
// pending invite reaches its terminal state and the review target gets a new
// invite: a reciprocal-review invite when they have not reviewed the author
// for this listing yet, a reply invite otherwise.
func (e *Engine) OnReviewAdded(ctx context.Context, review models.Review) error {
	author, err := e.users.Get(ctx, review.AuthorID)
	if err != nil {
		return err
	}
	target, err := e.users.Get(ctx, review.TargetID)
	if err != nil {
		return err
	}

	done := completionText(target.Name, review)
	key := repositories.InviteKey{CounterpartID: review.TargetID, ListingID: &review.ListingID}
	if err := e.fulfill(ctx, review.AuthorID, key, done); err != nil {
		return err
	}

	reciprocal, err := e.reviews.ExistsRoot(ctx, review.TargetID, review.AuthorID, review.ListingID)
	if err != nil {
		return err
	}

	listing, err := e.listings.Get(ctx, review.ListingID)
	if err != nil {
		return err
	}

	kind := models.InviteLeaveRoot
	text := fmt.Sprintf("%s left you a review. Share your experience with them in return.", author.Name)
	if reciprocal {
		kind = models.InviteLeaveReply
		text = fmt.Sprintf("%s left you a review. You can reply to it.", author.Name)
	}
	return e.createInvite(ctx, review.TargetID, author, &listing, kind, text)
}

// OnReviewReplied reacts to a reply landing under a root review. The reply
// author's pending invite for the root author reaches its terminal state.
func (e *Engine) OnReviewReplied(ctx context.Context, reply, parent models.Review) error {
	rootAuthor, err := e.users.Get(ctx, parent.AuthorID)
	if err != nil {
		return err
	}

	done := fmt.Sprintf("You replied to %s's review.", rootAuthor.Name)
	kind := models.InviteLeaveReply
	key := repositories.InviteKey{
		CounterpartID: parent.AuthorID,
		ListingID:     &parent.ListingID,
		Kind:          &kind,
	}
	return e.fulfill(ctx, reply.AuthorID, key, done)
}

// OnReviewDeleted removes the invite a deleted root review planted in the
// target's system chat, as long as it is still pending. Fulfilled invites
// stay as they are.
func (e *Engine) OnReviewDeleted(ctx context.Context, review models.Review) error {
	if !review.IsRoot() {
		return nil
	}

	chat, found, err := e.chats.FindSystemPair(ctx, e.systemUserID, review.TargetID)
	if err != nil || !found {
		return err
	}

	key := repositories.InviteKey{
		CounterpartID: review.AuthorID,
		ListingID:     &review.ListingID,
	}
	msg, found, err := e.messages.FindPendingInvite(ctx, chat.ID, key)
	if err != nil || !found {
		return err
	}

	if err := e.messages.Delete(ctx, msg.ID); err != nil {
		return err
	}
	if msg.ActionType != nil {
		observability.IncInviteTransition(*msg.ActionType, "removed")
	}
	e.notifier.MessageDeleted(ctx, chat.ID, msg.ID)
	return nil
}

func (e *Engine) createInvite(ctx context.Context, recipientID int, counterpart models.User, listing *models.Listing, kind models.InviteKind, text string) error {
	chatRow, chatCreated, err := e.chats.Resolve(ctx, e.systemUserID, recipientID, nil)
	if err != nil {
		return err
	}

	meta := models.ActionMeta{Counterpart: counterpart.Preview()}
	var listingID *int
	if listing != nil {
		preview := listing.Preview()
		meta.Listing = &preview
		listingID = &listing.ID
	}

	msg, created, err := e.messages.CreateInvite(ctx, repositories.InviteParams{
		ChatID:        chatRow.ID,
		SenderID:      e.systemUserID,
		TargetID:      recipientID,
		Text:          text,
		Kind:          kind,
		CounterpartID: counterpart.ID,
		ListingID:     listingID,
		Meta:          meta,
	})
	if err != nil {
		return err
	}
	if !created {
		observability.IncInviteTransition(string(kind), "suppressed")
		return nil
	}
	observability.IncInviteTransition(string(kind), "created")

	system, err := e.users.Get(ctx, e.systemUserID)
	if err != nil {
		return err
	}

	if chatCreated {
		summaries, err := e.summaries.ChatSummaries(ctx, chatRow)
		if err != nil {
			e.log.Warnw("enrich system chat failed", "chat_id", chatRow.ID, "error", err)
			summaries = map[int]models.ChatSummary{}
		}
		e.notifier.ChatCreated(ctx, chatRow, msg, system.Preview(), summaries)
		return nil
	}
	e.notifier.MessageCreated(ctx, chatRow, msg, system.Preview(), recipientID)
	return nil
}

// fulfill moves the owner's matching pending invite to its terminal state.
// Nothing pending is not an error; the invite may never have existed or may
// already be fulfilled.
func (e *Engine) fulfill(ctx context.Context, ownerID int, key repositories.InviteKey, newText string) error {
	chatRow, found, err := e.chats.FindSystemPair(ctx, e.systemUserID, ownerID)
	if err != nil || !found {
		return err
	}

	msg, found, err := e.messages.FindPendingInvite(ctx, chatRow.ID, key)
	if err != nil || !found {
		return err
	}

	updated, err := e.messages.FulfillInvite(ctx, msg.ID, newText)
	if err != nil {
		return err
	}
	if msg.ActionType != nil {
		observability.IncInviteTransition(*msg.ActionType, "fulfilled")
	}
	e.notifier.MessageUpdated(ctx, chatRow, updated)
	return nil
}

func completionText(targetName string, review models.Review) string {
	if review.Rating != nil {
		return fmt.Sprintf("You left a review for %s: %q (%d/5)", targetName, review.Text, *review.Rating)
	}
	return fmt.Sprintf("You left a review for %s: %q", targetName, review.Text)
}
