package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads collaborator-owned user data and writes back the
// aggregated rating.
type UserRepository interface {
	Get(ctx context.Context, userID int) (models.User, error)
	BulkByIDs(ctx context.Context, ids []int) (map[int]models.User, error)
	SetRating(ctx context.Context, userID int, rating float64) error
	EnsureSystemUser(ctx context.Context, userID int, name string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, name, email, push_token, rating FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkByIDs fetches multiple users keyed by id.
func (r *UserRepo) BulkByIDs(ctx context.Context, ids []int) (map[int]models.User, error) {
	users := map[int]models.User{}
	if len(ids) == 0 {
		return users, nil
	}

	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, name, email, push_token, rating FROM users WHERE id = ANY($1)`,
		pq.Int64Array(id64s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		if err := rows.StructScan(&user); err != nil {
			return nil, err
		}
		users[user.ID] = user
	}
	return users, rows.Err()
}

// SetRating writes the recomputed mean rating.
func (r *UserRepo) SetRating(ctx context.Context, userID int, rating float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET rating=$2 WHERE id=$1`, userID, rating)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureSystemUser creates the synthetic system participant on startup if it
// does not exist yet.
func (r *UserRepo) EnsureSystemUser(ctx context.Context, userID int, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		userID, name)
	return err
}
