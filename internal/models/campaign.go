package models

import "time"

const (
	CampaignStatusDraft   = "draft"
	CampaignStatusSending = "sending"
	CampaignStatusSent    = "sent"
	CampaignStatusFailed  = "failed"
)

// Campaign is a bulk email to the subscriber list. The body is authored in
// Markdown and rendered to HTML at send time.
type Campaign struct {
	ID           int64      `json:"id" db:"id"`
	Subject      string     `json:"subject" db:"subject"`
	BodyMarkdown string     `json:"body_markdown" db:"body_markdown"`
	BodyHTML     string     `json:"body_html" db:"body_html"`
	Status       string     `json:"status" db:"status"`
	SentCount    int        `json:"sent_count" db:"sent_count"`
	FailedCount  int        `json:"failed_count" db:"failed_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}
