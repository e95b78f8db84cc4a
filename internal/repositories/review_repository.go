package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateReview = errors.New("review already exists for this listing")
)

// ReviewRepository persists the review records whose creation and deletion
// drive the invite engine.
type ReviewRepository interface {
	Create(ctx context.Context, review models.Review) (models.Review, error)
	Get(ctx context.Context, reviewID int) (models.Review, error)
	ListRoots(ctx context.Context, targetID, page, limit int) ([]models.ReviewWithAuthor, int, error)
	RepliesFor(ctx context.Context, rootIDs []int) (map[int][]models.ReviewWithAuthor, error)
	Delete(ctx context.Context, reviewID int) error
	AverageRating(ctx context.Context, targetID int) (float64, error)
	ExistsRoot(ctx context.Context, authorID, targetID, listingID int) (bool, error)
}

// ReviewRepo is a sqlx implementation of ReviewRepository.
type ReviewRepo struct {
	db *sqlx.DB
}

// NewReviewRepo constructs a ReviewRepo.
func NewReviewRepo(db *sqlx.DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

const reviewColumns = `id, author_id, target_id, listing_id, text, rating, parent_id, created_at, updated_at`

// Create inserts a review. A second root review for the same
// author/target/listing trips the partial unique index and returns
// ErrDuplicateReview.
func (r *ReviewRepo) Create(ctx context.Context, review models.Review) (models.Review, error) {
	var created models.Review
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO reviews (author_id, target_id, listing_id, text, rating, parent_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+reviewColumns,
		review.AuthorID, review.TargetID, review.ListingID, review.Text, review.Rating, review.ParentID).StructScan(&created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Review{}, ErrDuplicateReview
		}
		return models.Review{}, err
	}
	return created, nil
}

// Get fetches a review by id.
func (r *ReviewRepo) Get(ctx context.Context, reviewID int) (models.Review, error) {
	var review models.Review
	err := r.db.GetContext(ctx, &review,
		`SELECT `+reviewColumns+` FROM reviews WHERE id=$1`, reviewID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Review{}, ErrReviewNotFound
	}
	return review, err
}

// ListRoots returns one page of root reviews about the target, newest first.
func (r *ReviewRepo) ListRoots(ctx context.Context, targetID, page, limit int) ([]models.ReviewWithAuthor, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var items []models.ReviewWithAuthor
	err := r.db.SelectContext(ctx, &items,
		`SELECT r.id, r.author_id, r.target_id, r.listing_id, r.text, r.rating, r.parent_id, r.created_at, r.updated_at,
                u.name AS author_name
         FROM reviews r JOIN users u ON u.id = r.author_id
         WHERE r.target_id=$1 AND r.parent_id IS NULL
         ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`,
		targetID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM reviews WHERE target_id=$1 AND parent_id IS NULL`, targetID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// RepliesFor returns replies grouped by their root review id, oldest first.
func (r *ReviewRepo) RepliesFor(ctx context.Context, rootIDs []int) (map[int][]models.ReviewWithAuthor, error) {
	grouped := map[int][]models.ReviewWithAuthor{}
	if len(rootIDs) == 0 {
		return grouped, nil
	}

	id64s := make([]int64, 0, len(rootIDs))
	for _, id := range rootIDs {
		id64s = append(id64s, int64(id))
	}

	var replies []models.ReviewWithAuthor
	err := r.db.SelectContext(ctx, &replies,
		`SELECT r.id, r.author_id, r.target_id, r.listing_id, r.text, r.rating, r.parent_id, r.created_at, r.updated_at,
                u.name AS author_name
         FROM reviews r JOIN users u ON u.id = r.author_id
         WHERE r.parent_id = ANY($1)
         ORDER BY r.created_at ASC`,
		pq.Int64Array(id64s))
	if err != nil {
		return nil, err
	}

	for _, reply := range replies {
		grouped[*reply.ParentID] = append(grouped[*reply.ParentID], reply)
	}
	return grouped, nil
}

// Delete removes a review and cascades to its replies.
func (r *ReviewRepo) Delete(ctx context.Context, reviewID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id=$1`, reviewID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// AverageRating recomputes the plain mean over root reviews about the target.
func (r *ReviewRepo) AverageRating(ctx context.Context, targetID int) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.GetContext(ctx, &avg,
		`SELECT AVG(rating) FROM reviews WHERE target_id=$1 AND parent_id IS NULL`, targetID)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// ExistsRoot reports whether the author already left a root review about the
// target for the listing.
func (r *ReviewRepo) ExistsRoot(ctx context.Context, authorID, targetID, listingID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM reviews WHERE author_id=$1 AND target_id=$2 AND listing_id=$3 AND parent_id IS NULL)`,
		authorID, targetID, listingID)
	return exists, err
}
