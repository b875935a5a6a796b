package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// CampaignRepository persists email campaigns.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, subject, body_markdown, body_html, status, sent_count, failed_count, created_at, sent_at`

// Create inserts a draft campaign with its pre-rendered HTML body.
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) (int64, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO campaigns (subject, body_markdown, body_html, status, created_at)
		VALUES ($1, $2, $3, 'draft', now())
		RETURNING id`,
		c.Subject, c.BodyMarkdown, c.BodyHTML,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert campaign: %w", err)
	}
	return id, nil
}

// GetByID loads one campaign.
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := r.db.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	return &c, nil
}

// List returns campaigns newest first.
func (r *CampaignRepository) List(ctx context.Context, limit, offset int) ([]models.Campaign, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.Campaign
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+campaignColumns+` FROM campaigns
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return rows, nil
}

// MarkSending transitions a draft to sending. Returns ErrNotFound when the
// campaign is missing or not a draft, which guards against double sends.
func (r *CampaignRepository) MarkSending(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = 'sending' WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign sending: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish records the outcome of a send run.
func (r *CampaignRepository) Finish(ctx context.Context, id int64, sent, failed int, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, sent_count = $3, failed_count = $4, sent_at = now()
		WHERE id = $1`, id, status, sent, failed)
	if err != nil {
		return fmt.Errorf("failed to finish campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
