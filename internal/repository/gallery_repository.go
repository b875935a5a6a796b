package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// GalleryRepository persists gallery image metadata.
type GalleryRepository struct {
	db *sqlx.DB
}

// NewGalleryRepository creates a new gallery repository.
func NewGalleryRepository(db *sqlx.DB) *GalleryRepository {
	return &GalleryRepository{db: db}
}

const galleryColumns = `id, title, file_path, content_type, size_bytes, status, created_at, updated_at`

// Create records an uploaded image, initially pending moderation.
func (r *GalleryRepository) Create(ctx context.Context, img *models.GalleryImage) (int64, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO gallery_images (title, file_path, content_type, size_bytes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', now(), now())
		RETURNING id`,
		img.Title, img.FilePath, img.ContentType, img.SizeBytes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert gallery image: %w", err)
	}
	return id, nil
}

// GetByID loads one image record.
func (r *GalleryRepository) GetByID(ctx context.Context, id int64) (*models.GalleryImage, error) {
	var img models.GalleryImage
	err := r.db.GetContext(ctx, &img,
		`SELECT `+galleryColumns+` FROM gallery_images WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery image: %w", err)
	}
	return &img, nil
}

// List returns images newest first, optionally filtered by moderation status.
func (r *GalleryRepository) List(ctx context.Context, status string, limit, offset int) ([]models.GalleryImage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var (
		rows []models.GalleryImage
		err  error
	)
	if status != "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+galleryColumns+` FROM gallery_images
			WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+galleryColumns+` FROM gallery_images
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery images: %w", err)
	}
	return rows, nil
}

// SetStatus moderates an image (approved or rejected).
func (r *GalleryRepository) SetStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case models.GalleryStatusPending, models.GalleryStatusApproved, models.GalleryStatusRejected:
	default:
		return fmt.Errorf("invalid gallery status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE gallery_images SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to moderate gallery image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the metadata row. The caller deletes the file.
func (r *GalleryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM gallery_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete gallery image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
