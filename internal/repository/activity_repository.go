package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// ActivityRepository appends to the activity log.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record appends one event.
func (r *ActivityRepository) Record(ctx context.Context, ev *models.ActivityEvent) error {
	meta := ev.Meta
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (kind, path, meta, created_at)
		VALUES ($1, $2, $3, now())`, ev.Kind, ev.Path, meta)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// CountSince returns per-kind event counts over the window, for the admin
// analytics dashboard.
func (r *ActivityRepository) CountSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT kind, COUNT(*) FROM activity_log
		WHERE created_at >= $1
		GROUP BY kind`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan activity count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
