package repository

import (
	"context"
	"testing"

	"matchday/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserCreatesInactiveSubscription(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	subs := NewSubscriptionRepo(db)
	ctx := context.Background()

	u := &model.User{UserID: "user-1", Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, users.CreateUser(ctx, u))
	assert.False(t, u.CreatedAt.IsZero())

	got, err := users.GetUserByID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice@example.com", got.Email)

	sub, err := subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, model.StatusInactive, sub.Status)
}

func TestCreateUserDuplicateFails(t *testing.T) {
	users := NewUserRepo(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, users.CreateUser(ctx, &model.User{UserID: "user-1", Email: "a@example.com"}))
	assert.Error(t, users.CreateUser(ctx, &model.User{UserID: "user-1", Email: "b@example.com"}))
}

func TestGetUserByIDNotFound(t *testing.T) {
	users := NewUserRepo(setupTestDB(t))

	u, err := users.GetUserByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestDLQCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDLQRepository(db)

	attrs := `{"event_type":"invoice.paid"}`
	msg := &model.DeadLetterMessage{
		Source:     model.DeadLetterSourceWebhook,
		MessageID:  "evt_1",
		Payload:    `{"id":"evt_1"}`,
		Attributes: &attrs,
		Status:     model.DeadLetterStatusFailed,
	}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)

	var messageID, status string
	require.NoError(t, db.QueryRow(`SELECT message_id, status FROM dead_letter_messages WHERE id = $1`, msg.ID).Scan(&messageID, &status))
	assert.Equal(t, "evt_1", messageID)
	assert.Equal(t, "failed", status)
}
