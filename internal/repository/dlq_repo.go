package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"matchday/internal/model"

	"github.com/google/uuid"
)

type DLQRepository interface {
	Create(ctx context.Context, message *model.DeadLetterMessage) error
}

type dlqRepository struct {
	db *sql.DB
}

func NewDLQRepository(db *sql.DB) DLQRepository {
	return &dlqRepository{db: db}
}

func (r *dlqRepository) Create(ctx context.Context, message *model.DeadLetterMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	message.CreatedAt, message.UpdatedAt = now, now

	query := `
        INSERT INTO dead_letter_messages (id, source, message_id, payload, attributes, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
    `
	_, err := r.db.ExecContext(
		ctx,
		query,
		message.ID,
		message.Source,
		message.MessageID,
		message.Payload,
		message.Attributes,
		message.Status,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter message %s: %w", message.MessageID, err)
	}
	return nil
}
