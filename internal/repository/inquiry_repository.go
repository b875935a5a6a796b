package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// ErrReplyExists is returned when a reply with the same Message-ID is already
// attached to the inquiry.
var ErrReplyExists = errors.New("reply with this message id already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// InquiryRepository persists inquiry threads and their replies.
type InquiryRepository struct {
	db *sqlx.DB
}

// NewInquiryRepository creates a new inquiry repository.
func NewInquiryRepository(db *sqlx.DB) *InquiryRepository {
	return &InquiryRepository{db: db}
}

const inquiryColumns = `id, email, name, subject, message, status, reply_count, last_reply_at, created_at, updated_at`

// Create inserts a new inquiry thread. The email is lowercased here and never
// changed afterward.
func (r *InquiryRepository) Create(ctx context.Context, inq *models.Inquiry) (int64, error) {
	query := `
		INSERT INTO inquiries (email, name, subject, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'new', now(), now())
		RETURNING id`

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		strings.ToLower(strings.TrimSpace(inq.Email)),
		inq.Name, inq.Subject, inq.Message,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert inquiry: %w", err)
	}
	return id, nil
}

// GetByID loads one inquiry with its ordered replies.
func (r *InquiryRepository) GetByID(ctx context.Context, id int64) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := r.db.GetContext(ctx, &inq,
		`SELECT `+inquiryColumns+` FROM inquiries WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inquiry %d: %w", id, err)
	}

	err = r.db.SelectContext(ctx, &inq.Replies, `
		SELECT id, inquiry_id, position, at, subject, message, from_name, inbound, message_id, note
		FROM inquiry_replies
		WHERE inquiry_id = $1
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load replies for inquiry %d: %w", id, err)
	}
	return &inq, nil
}

// List returns inquiries newest first, optionally filtered by status.
func (r *InquiryRepository) List(ctx context.Context, status string, limit, offset int) ([]models.Inquiry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var (
		rows []models.Inquiry
		err  error
	)
	if status != "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+inquiryColumns+` FROM inquiries
			WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+inquiryColumns+` FROM inquiries
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list inquiries: %w", err)
	}
	return rows, nil
}

// FindLatestByEmail returns the most recent inquiry with this exact stored
// email, or ErrNotFound.
func (r *InquiryRepository) FindLatestByEmail(ctx context.Context, email string) (*models.Inquiry, error) {
	return r.getLatest(ctx, `
		SELECT `+inquiryColumns+` FROM inquiries
		WHERE email = $1
		ORDER BY created_at DESC LIMIT 1`, email)
}

// FindLatestByEmailFold is the case-insensitive fallback for inconsistently
// cased stored addresses.
func (r *InquiryRepository) FindLatestByEmailFold(ctx context.Context, email string) (*models.Inquiry, error) {
	return r.getLatest(ctx, `
		SELECT `+inquiryColumns+` FROM inquiries
		WHERE lower(email) = lower($1)
		ORDER BY created_at DESC LIMIT 1`, email)
}

// FindLatestByReplyMessageID returns the most recent inquiry holding a reply
// whose Message-ID is in ids.
func (r *InquiryRepository) FindLatestByReplyMessageID(ctx context.Context, ids []string) (*models.Inquiry, error) {
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	query, args, err := sqlx.In(`
		SELECT DISTINCT i.id, i.email, i.name, i.subject, i.message, i.status,
		       i.reply_count, i.last_reply_at, i.created_at, i.updated_at
		FROM inquiries i
		JOIN inquiry_replies r ON r.inquiry_id = i.id
		WHERE r.message_id IN (?)
		ORDER BY i.created_at DESC LIMIT 1`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build message-id query: %w", err)
	}
	return r.getLatest(ctx, r.db.Rebind(query), args...)
}

// FindLatestBySubject returns the most recent inquiry whose stored subject
// contains the given text, case-insensitively.
func (r *InquiryRepository) FindLatestBySubject(ctx context.Context, subject string) (*models.Inquiry, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrNotFound
	}
	return r.getLatest(ctx, `
		SELECT `+inquiryColumns+` FROM inquiries
		WHERE subject ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC LIMIT 1`, subject)
}

func (r *InquiryRepository) getLatest(ctx context.Context, query string, args ...any) (*models.Inquiry, error) {
	var inq models.Inquiry
	err := r.db.GetContext(ctx, &inq, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inquiry lookup failed: %w", err)
	}
	return &inq, nil
}

// HasReplyMessageID reports whether the inquiry already holds a reply with
// this Message-ID. This is the authoritative dedup check.
func (r *InquiryRepository) HasReplyMessageID(ctx context.Context, inquiryID int64, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM inquiry_replies
			WHERE inquiry_id = $1 AND message_id = $2
		)`, inquiryID, messageID)
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return exists, nil
}

// AppendReply attaches a reply to the thread and updates the denormalized
// counters in one transaction. Inbound replies elevate status to read unless
// the thread is already replied; outbound staff replies set it to replied.
func (r *InquiryRepository) AppendReply(ctx context.Context, inquiryID int64, reply *models.Reply) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	if reply.MessageID != nil && *reply.MessageID != "" {
		var exists bool
		err = tx.GetContext(ctx, &exists, `
			SELECT EXISTS (
				SELECT 1 FROM inquiry_replies
				WHERE inquiry_id = $1 AND message_id = $2
			)`, inquiryID, *reply.MessageID)
		if err != nil {
			return fmt.Errorf("dedup check failed: %w", err)
		}
		if exists {
			return ErrReplyExists
		}
	}

	at := reply.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO inquiry_replies (inquiry_id, position, at, subject, message, from_name, inbound, message_id, note)
		SELECT $1, COALESCE(MAX(position), 0) + 1, $2, $3, $4, $5, $6, $7, $8
		FROM inquiry_replies WHERE inquiry_id = $1
		RETURNING id, position`,
		inquiryID, at, reply.Subject, reply.Message, reply.FromName,
		reply.Inbound, reply.MessageID, reply.Note,
	).Scan(&reply.ID, &reply.Position)
	if err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}

	statusExpr := `'replied'`
	if reply.Inbound {
		// Inbound replies never reset to new and only preserve replied.
		statusExpr = `CASE WHEN status = 'replied' THEN 'replied' ELSE 'read' END`
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE inquiries
		SET reply_count = reply_count + 1,
		    last_reply_at = $2,
		    status = `+statusExpr+`,
		    updated_at = now()
		WHERE id = $1`, inquiryID, at)
	if err != nil {
		return fmt.Errorf("failed to update inquiry counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	reply.InquiryID = inquiryID
	reply.At = at
	return tx.Commit()
}

// DeleteReplyAt removes the reply at the given zero-based index and fixes the
// counters. Positions of later replies are left untouched so ordering stays
// stable.
func (r *InquiryRepository) DeleteReplyAt(ctx context.Context, inquiryID int64, index int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	var replyID int64
	err = tx.GetContext(ctx, &replyID, `
		SELECT id FROM inquiry_replies
		WHERE inquiry_id = $1
		ORDER BY position ASC
		OFFSET $2 LIMIT 1`, inquiryID, index)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to locate reply: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM inquiry_replies WHERE id = $1`, replyID); err != nil {
		return fmt.Errorf("failed to delete reply: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE inquiries
		SET reply_count = GREATEST(reply_count - 1, 0), updated_at = now()
		WHERE id = $1`, inquiryID); err != nil {
		return fmt.Errorf("failed to update inquiry counters: %w", err)
	}
	return tx.Commit()
}

// UpdateStatus sets the thread status (new, read, replied).
func (r *InquiryRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidInquiryStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE inquiries SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
