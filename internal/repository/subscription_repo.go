package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"matchday/internal/model"
)

// ErrSubscriptionNotFound is returned by writes that target a user without a subscription row.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository defines methods for accessing subscription data.
type SubscriptionRepository interface {
	// EnsureForUser inserts an inactive row for the user if none exists and returns the row.
	EnsureForUser(ctx context.Context, userID string) (*model.Subscription, error)
	GetByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error)
	// LinkCustomer attaches customerID to the user's row unless another customer
	// is already attached, and returns the customer id on file afterwards.
	LinkCustomer(ctx context.Context, userID, customerID string) (string, error)
	// ApplySnapshot overwrites every mutable field of the row with the snapshot.
	ApplySnapshot(ctx context.Context, userID string, snap model.SubscriptionSnapshot) error
	UpdateStatus(ctx context.Context, userID string, status model.SubscriptionStatus) error
	MarkCanceled(ctx context.Context, userID string) error
	SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error
	// ListUserIDsWithCustomer pages through users that have an external customer, ordered by user id.
	ListUserIDsWithCustomer(ctx context.Context, afterUserID string, limit int) ([]string, error)
}

type subscriptionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const subscriptionCols = `user_id, external_customer_id, external_subscription_id, status, plan,
       current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var customerID, subscriptionID, plan sql.NullString
	var periodStart, periodEnd sql.NullTime
	err := scanner.Scan(
		&sub.UserID,
		&customerID,
		&subscriptionID,
		&sub.Status,
		&plan,
		&periodStart,
		&periodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sub.ExternalCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		sub.ExternalSubscriptionID = &subscriptionID.String
	}
	if plan.Valid {
		p := model.Plan(plan.String)
		sub.Plan = &p
	}
	if periodStart.Valid {
		t := periodStart.Time.UTC()
		sub.CurrentPeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		sub.CurrentPeriodEnd = &t
	}
	return &sub, nil
}

func (r *subscriptionRepo) EnsureForUser(ctx context.Context, userID string) (*model.Subscription, error) {
	const q = `
        INSERT INTO subscriptions (user_id, status, cancel_at_period_end, created_at, updated_at)
        VALUES ($1, $2, FALSE, $3, $3)
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := r.db.ExecContext(ctx, q, userID, model.StatusInactive, r.now()); err != nil {
		return nil, fmt.Errorf("ensure subscription for user %s: %w", userID, err)
	}
	sub, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("ensure subscription for user %s: %w", userID, ErrSubscriptionNotFound)
	}
	return sub, nil
}

// GetByUserID returns the user's subscription row, or nil if there is none.
func (r *subscriptionRepo) GetByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = $1`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

// GetByCustomerID returns the row attached to an external customer, or nil if there is none.
func (r *subscriptionRepo) GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions WHERE external_customer_id = $1`, customerID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subscription for customer %s: %w", customerID, err)
	}
	return sub, nil
}

func (r *subscriptionRepo) LinkCustomer(ctx context.Context, userID, customerID string) (string, error) {
	const q = `
        UPDATE subscriptions SET external_customer_id = $2, updated_at = $3
        WHERE user_id = $1 AND external_customer_id IS NULL
    `
	if _, err := r.db.ExecContext(ctx, q, userID, customerID, r.now()); err != nil {
		return "", fmt.Errorf("link customer for user %s: %w", userID, err)
	}
	sub, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.CustomerID() == "" {
		return "", fmt.Errorf("link customer for user %s: %w", userID, ErrSubscriptionNotFound)
	}
	return sub.CustomerID(), nil
}

func (r *subscriptionRepo) ApplySnapshot(ctx context.Context, userID string, snap model.SubscriptionSnapshot) error {
	const q = `
        UPDATE subscriptions
        SET external_customer_id = $2,
            external_subscription_id = $3,
            status = $4,
            plan = $5,
            current_period_start = $6,
            current_period_end = $7,
            cancel_at_period_end = $8,
            updated_at = $9
        WHERE user_id = $1
    `
	return r.exec(ctx, "apply snapshot", userID, q,
		userID,
		nullString(snap.ExternalCustomerID),
		nullString(snap.ExternalSubscriptionID),
		snap.Status,
		snap.Plan,
		utc(snap.CurrentPeriodStart),
		utc(snap.CurrentPeriodEnd),
		snap.CancelAtPeriodEnd,
		r.now(),
	)
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, userID string, status model.SubscriptionStatus) error {
	const q = `UPDATE subscriptions SET status = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, "update status", userID, q, userID, status, r.now())
}

func (r *subscriptionRepo) MarkCanceled(ctx context.Context, userID string) error {
	const q = `UPDATE subscriptions SET status = $2, cancel_at_period_end = FALSE, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, "mark canceled", userID, q, userID, model.StatusCanceled, r.now())
}

func (r *subscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	const q = `UPDATE subscriptions SET cancel_at_period_end = $2, updated_at = $3 WHERE user_id = $1`
	return r.exec(ctx, "set cancel at period end", userID, q, userID, cancel, r.now())
}

func (r *subscriptionRepo) ListUserIDsWithCustomer(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	const q = `
        SELECT user_id FROM subscriptions
        WHERE external_customer_id IS NOT NULL AND user_id > $1
        ORDER BY user_id
        LIMIT $2
    `
	rows, err := r.db.QueryContext(ctx, q, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list users with customer: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users with customer: %w", err)
	}
	return ids, nil
}

func (r *subscriptionRepo) exec(ctx context.Context, op, userID, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s for user %s: %w", op, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s for user %s: %w", op, userID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s for user %s: %w", op, userID, ErrSubscriptionNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utc(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
