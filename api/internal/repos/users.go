package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"taskflow/api/internal/models"
)

type UsersRepo struct {
	db DBTX
}

func NewUsersRepo(db DBTX) *UsersRepo {
	return &UsersRepo{db: db}
}

func (r *UsersRepo) CreateUser(ctx context.Context, email string, fullName string) (models.User, error) {
	var user models.User
	var name *string
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, full_name)
		VALUES ($1, $2)
		RETURNING user_id, email, full_name, created_at
	`, strings.TrimSpace(email), nullIfEmpty(fullName)).
		Scan(&user.UserID, &user.Email, &name, &user.CreatedAt)
	if name != nil {
		user.FullName = *name
	}
	return user, err
}

func (r *UsersRepo) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	var name *string
	err := r.db.QueryRow(ctx, `
		SELECT user_id, email, full_name, created_at
		FROM users
		WHERE user_id = $1
	`, userID).
		Scan(&user.UserID, &user.Email, &name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	if name != nil {
		user.FullName = *name
	}
	return user, nil
}

func (r *UsersRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	return rowExists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID)
}

func rowExists(ctx context.Context, db DBTX, query string, id int64) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
