package model

import "time"

// Dead letter sources.
const (
	DeadLetterSourceWebhook = "stripe_webhook"
	DeadLetterSourceCleanup = "cleanup_orchestrator"
)

const DeadLetterStatusFailed = "failed"

// DeadLetterMessage is an inbound event or queued job that could not be
// processed. The payload is kept verbatim for replay.
type DeadLetterMessage struct {
	ID         string    `db:"id"`
	Source     string    `db:"source"`
	MessageID  string    `db:"message_id"` // processor event id or queue message id
	Payload    string    `db:"payload"`
	Attributes *string   `db:"attributes"` // JSON object, nullable
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
