package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Manz2/chat-e2e/internal/model"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO app_user (handle, display_name)
		VALUES ($1, $2)
		RETURNING id, handle, display_name, created_at
	`
	err := r.db.GetContext(ctx, user, query, user.Handle, user.DisplayName)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return model.ErrHandleExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	query := `
		SELECT id, handle, display_name, created_at
		FROM app_user
		WHERE handle = $1
	`
	var user model.User
	err := r.db.GetContext(ctx, &user, query, handle)
	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by handle: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, handle, display_name, created_at
		FROM app_user
		WHERE id = $1
	`
	var user model.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}
