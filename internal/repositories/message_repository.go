package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// CreateMessageParams describes a message insert plus the chat summary
// mutation that must land atomically with it.
type CreateMessageParams struct {
	ChatID      int
	SenderID    int
	RecipientID int
	Text        string
	Media       []string
	MediaType   string
	ReplyTo     *int
	SummaryText string
}

// InviteParams describes an idempotent invite insert. The (chat, kind,
// counterpart, listing) key is enforced by a partial unique index.
type InviteParams struct {
	ChatID        int
	SenderID      int
	TargetID      int
	Text          string
	Kind          models.InviteKind
	CounterpartID int
	ListingID     *int
	Meta          models.ActionMeta
}

// InviteKey locates a pending invite. A nil Kind matches any pending kind.
type InviteKey struct {
	CounterpartID int
	ListingID     *int
	Kind          *models.InviteKind
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, p CreateMessageParams) (models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	ListPage(ctx context.Context, chatID, page, limit int) ([]models.Message, int, error)
	UpdateContent(ctx context.Context, messageID int, text string, media []string) (models.Message, error)
	Delete(ctx context.Context, messageID int) error
	SetReaction(ctx context.Context, messageID int, reaction *string) (models.Message, error)
	MarkLatestUnread(ctx context.Context, chatID, readerID int) (models.Message, bool, error)
	CreateInvite(ctx context.Context, p InviteParams) (models.Message, bool, error)
	FindPendingInvite(ctx context.Context, chatID int, key InviteKey) (models.Message, bool, error)
	FulfillInvite(ctx context.Context, messageID int, newText string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, text, media, media_type, is_read, reaction, reply_to, is_changed,
    action_type, action_label, action_counterpart_id, action_listing_id, action_meta, created_at, updated_at`

// Create inserts a message and applies the chat summary (last message,
// recipient unread counter) in one transaction, so callers never observe a
// partial write.
func (r *MessageRepo) Create(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, text, media, media_type, reply_to)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+messageColumns,
		p.ChatID, p.SenderID, p.Text, pq.StringArray(p.Media), p.MediaType, p.ReplyTo).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := applySummary(ctx, tx, p.ChatID, p.SummaryText, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}
	if err := bumpUnread(ctx, tx, p.ChatID, p.RecipientID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListPage returns one page of chat messages, newest first, with the total
// message count for the chat.
func (r *MessageRepo) ListPage(ctx context.Context, chatID, page, limit int) ([]models.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1
         ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// UpdateContent rewrites text and media of an edited message and marks it
// changed.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, text string, media []string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET text=$2, media=$3, is_changed=TRUE, updated_at=NOW()
         WHERE id=$1 RETURNING `+messageColumns,
		messageID, text, pq.StringArray(media)).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Delete hard-removes a message. The chat summary is intentionally left
// stale; it reflects the deleted message until the next send.
func (r *MessageRepo) Delete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetReaction overwrites or clears the single reaction slot.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID int, reaction *string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET reaction=$2, updated_at=NOW() WHERE id=$1 RETURNING `+messageColumns,
		messageID, reaction).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkLatestUnread flips the is_read bit on the newest unread message not
// authored by the reader. Returns false when every such message is read.
func (r *MessageRepo) MarkLatestUnread(ctx context.Context, chatID, readerID int) (models.Message, bool, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET is_read=TRUE, updated_at=NOW()
         WHERE id = (
             SELECT id FROM messages
             WHERE chat_id=$1 AND sender_id<>$2 AND NOT is_read
             ORDER BY created_at DESC LIMIT 1
         )
         RETURNING `+messageColumns,
		chatID, readerID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// CreateInvite inserts an action-bearing system message unless a pending
// invite with the same key already exists. The second return value reports
// whether a row was actually created; a suppressed duplicate leaves the chat
// summary untouched.
func (r *MessageRepo) CreateInvite(ctx context.Context, p InviteParams) (models.Message, bool, error) {
	meta, err := json.Marshal(p.Meta)
	if err != nil {
		return models.Message{}, false, fmt.Errorf("marshal invite meta: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, false, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, text, action_type, action_label, action_counterpart_id, action_listing_id, action_meta)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         ON CONFLICT DO NOTHING
         RETURNING `+messageColumns,
		p.ChatID, p.SenderID, p.Text, string(p.Kind), p.Kind.Label(), p.CounterpartID, p.ListingID, meta).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, fmt.Errorf("insert invite: %w", err)
	}

	if err := applySummary(ctx, tx, p.ChatID, p.Text, msg.CreatedAt); err != nil {
		return models.Message{}, false, err
	}
	if err := bumpUnread(ctx, tx, p.ChatID, p.TargetID); err != nil {
		return models.Message{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// FindPendingInvite locates a still-pending invite by its key.
func (r *MessageRepo) FindPendingInvite(ctx context.Context, chatID int, key InviteKey) (models.Message, bool, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE chat_id=$1 AND action_type IS NOT NULL AND action_counterpart_id=$2`
	args := []interface{}{chatID, key.CounterpartID}
	if key.ListingID != nil {
		args = append(args, *key.ListingID)
		query += fmt.Sprintf(` AND action_listing_id=$%d`, len(args))
	}
	if key.Kind != nil {
		args = append(args, string(*key.Kind))
		query += fmt.Sprintf(` AND action_type=$%d`, len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// FulfillInvite moves a pending invite to its terminal state: the text
// becomes the completion summary, the action is cleared and the chat summary
// is refreshed, all in one transaction.
func (r *MessageRepo) FulfillInvite(ctx context.Context, messageID int, newText string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`UPDATE messages
         SET text=$2, action_type=NULL, action_label=NULL, action_counterpart_id=NULL, action_listing_id=NULL, action_meta=NULL, updated_at=NOW()
         WHERE id=$1 AND action_type IS NOT NULL
         RETURNING `+messageColumns,
		messageID, newText).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if err := applySummary(ctx, tx, msg.ChatID, newText, time.Now()); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func applySummary(ctx context.Context, tx *sqlx.Tx, chatID int, text string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE chats SET last_message_text=$2, last_message_at=$3, updated_at=NOW() WHERE id=$1`,
		chatID, text, at)
	if err != nil {
		return fmt.Errorf("update chat summary: %w", err)
	}
	return nil
}

func bumpUnread(ctx context.Context, tx *sqlx.Tx, chatID, userID int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO chat_unread (chat_id, user_id, unread) VALUES ($1, $2, 1)
         ON CONFLICT (chat_id, user_id) DO UPDATE SET unread = chat_unread.unread + 1`,
		chatID, userID)
	if err != nil {
		return fmt.Errorf("bump unread: %w", err)
	}
	return nil
}
