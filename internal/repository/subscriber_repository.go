package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// SubscriberRepository persists newsletter subscribers.
type SubscriberRepository struct {
	db *sqlx.DB
}

// NewSubscriberRepository creates a new subscriber repository.
func NewSubscriberRepository(db *sqlx.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Subscribe inserts the address or reactivates a previous unsubscribe.
// Idempotent: an already-active address is returned unchanged.
func (r *SubscriberRepository) Subscribe(ctx context.Context, email string) (*models.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	token := uuid.NewString()

	var sub models.Subscriber
	err := r.db.GetContext(ctx, &sub, `
		INSERT INTO subscribers (email, status, token, created_at, updated_at)
		VALUES ($1, 'active', $2, now(), now())
		ON CONFLICT (email) DO UPDATE
		SET status = 'active', updated_at = now()
		RETURNING id, email, status, token, created_at, updated_at`,
		email, token)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", email, err)
	}
	return &sub, nil
}

// UnsubscribeByToken flips the subscriber to unsubscribed. Idempotent.
func (r *SubscriberRepository) UnsubscribeByToken(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = 'unsubscribed', updated_at = now()
		WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns every active subscriber, oldest first, for campaign
// fan-out.
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := r.db.SelectContext(ctx, &subs, `
		SELECT id, email, status, token, created_at, updated_at
		FROM subscribers
		WHERE status = 'active'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

// List returns subscribers newest first for the admin panel.
func (r *SubscriberRepository) List(ctx context.Context, limit, offset int) ([]models.Subscriber, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var subs []models.Subscriber
	err := r.db.SelectContext(ctx, &subs, `
		SELECT id, email, status, token, created_at, updated_at
		FROM subscribers
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

// GetByEmail looks up one subscriber.
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := r.db.GetContext(ctx, &sub, `
		SELECT id, email, status, token, created_at, updated_at
		FROM subscribers WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriber: %w", err)
	}
	return &sub, nil
}
