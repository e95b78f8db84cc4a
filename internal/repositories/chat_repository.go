package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	Resolve(ctx context.Context, userA, userB int, listingID *int) (models.Chat, bool, error)
	FindSystemPair(ctx context.Context, userA, userB int) (models.Chat, bool, error)
	Get(ctx context.Context, chatID int) (models.Chat, error)
	ListForUser(ctx context.Context, userID int) ([]models.Chat, error)
	IDsForUser(ctx context.Context, userID int) ([]int, error)
	UnreadCount(ctx context.Context, chatID, userID int) (int, error)
	UnreadForUser(ctx context.Context, userID int) (map[int]int, error)
	ResetUnread(ctx context.Context, chatID, userID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_system, listing_id, user1_id, user2_id, last_message_text, last_message_at, created_at, updated_at`

// Resolve finds or creates the unique chat for the participant pair. A nil
// listingID resolves the system chat for the pair. Safe under concurrent
// callers: the insert is an upsert against the partial unique indexes and the
// find is retried after a conflict.
func (r *ChatRepo) Resolve(ctx context.Context, userA, userB int, listingID *int) (models.Chat, bool, error) {
	if userA == userB {
		return models.Chat{}, false, errors.New("cannot create chat with self")
	}
	user1, user2 := userA, userB
	if user1 > user2 {
		user1, user2 = user2, user1
	}
	isSystem := listingID == nil

	var chat models.Chat
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (is_system, listing_id, user1_id, user2_id)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT DO NOTHING
         RETURNING `+chatColumns,
		isSystem, listingID, user1, user2).StructScan(&chat)
	if err == nil {
		if err := r.seedUnread(ctx, chat.ID, user1, user2); err != nil {
			return models.Chat{}, false, err
		}
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, fmt.Errorf("resolve chat: %w", err)
	}

	// Lost the race or the chat already existed; the unique index guarantees
	// the find succeeds now.
	if isSystem {
		err = r.db.GetContext(ctx, &chat,
			`SELECT `+chatColumns+` FROM chats WHERE is_system AND user1_id=$1 AND user2_id=$2`,
			user1, user2)
	} else {
		err = r.db.GetContext(ctx, &chat,
			`SELECT `+chatColumns+` FROM chats WHERE NOT is_system AND user1_id=$1 AND user2_id=$2 AND listing_id=$3`,
			user1, user2, *listingID)
	}
	if err != nil {
		return models.Chat{}, false, fmt.Errorf("resolve chat: %w", err)
	}
	return chat, false, nil
}

func (r *ChatRepo) seedUnread(ctx context.Context, chatID, user1, user2 int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_unread (chat_id, user_id, unread) VALUES ($1, $2, 0), ($1, $3, 0)
         ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, user1, user2)
	return err
}

// FindSystemPair looks the pair's system chat up without creating it.
func (r *ChatRepo) FindSystemPair(ctx context.Context, userA, userB int) (models.Chat, bool, error) {
	user1, user2 := userA, userB
	if user1 > user2 {
		user1, user2 = user2, user1
	}
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE is_system AND user1_id=$1 AND user2_id=$2`,
		user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, nil
	}
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, true, nil
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListForUser returns the user's chats, most recently updated first.
func (r *ChatRepo) ListForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 OR user2_id=$1 ORDER BY updated_at DESC`,
		userID)
	return chats, err
}

// IDsForUser returns the ids of every chat the user participates in.
func (r *ChatRepo) IDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM chats WHERE user1_id=$1 OR user2_id=$1`, userID)
	return ids, err
}

// UnreadCount returns the unread counter for one participant.
func (r *ChatRepo) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	var unread int
	err := r.db.GetContext(ctx, &unread,
		`SELECT unread FROM chat_unread WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return unread, err
}

// UnreadForUser returns the user's unread counters keyed by chat id.
func (r *ChatRepo) UnreadForUser(ctx context.Context, userID int) (map[int]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT chat_id, unread FROM chat_unread WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var chatID, unread int
		if err := rows.Scan(&chatID, &unread); err != nil {
			return nil, err
		}
		counts[chatID] = unread
	}
	return counts, rows.Err()
}

// ResetUnread zeroes the user's unread counter for the chat.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_unread (chat_id, user_id, unread) VALUES ($1, $2, 0)
         ON CONFLICT (chat_id, user_id) DO UPDATE SET unread = 0`,
		chatID, userID)
	return err
}
