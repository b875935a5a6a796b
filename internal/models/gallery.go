package models

import "time"

const (
	GalleryStatusPending  = "pending"
	GalleryStatusApproved = "approved"
	GalleryStatusRejected = "rejected"
)

// GalleryImage is an uploaded image awaiting moderation. The binary lives on
// the storage backend; this row is the metadata.
type GalleryImage struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	FilePath    string    `json:"file_path" db:"file_path"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
