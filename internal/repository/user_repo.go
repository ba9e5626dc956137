package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"matchday/internal/model"
)

type UserRepository interface {
	// CreateUser stores the profile and its inactive subscription row in one transaction.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type userRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepo(db *sql.DB) UserRepository {
	return &userRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	const insertUser = `INSERT INTO users (user_id, name, email, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`
	if _, err := tx.ExecContext(ctx, insertUser, u.UserID, u.Name, u.Email, now); err != nil {
		return fmt.Errorf("insert user %s: %w", u.UserID, err)
	}
	u.CreatedAt, u.UpdatedAt = now, now

	const insertSubscription = `
        INSERT INTO subscriptions (user_id, status, cancel_at_period_end, created_at, updated_at)
        VALUES ($1, $2, FALSE, $3, $3)
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := tx.ExecContext(ctx, insertSubscription, u.UserID, model.StatusInactive, now); err != nil {
		return fmt.Errorf("insert subscription for user %s: %w", u.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	query := `SELECT user_id, email, name, created_at, updated_at FROM users WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(&u.UserID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &u, nil
}
