package models

import "time"

// Inquiry status values. Transitions are new -> read -> replied, plus an
// explicit admin revert to new.
const (
	InquiryStatusNew     = "new"
	InquiryStatusRead    = "read"
	InquiryStatusReplied = "replied"
)

// Inquiry is a contact-form thread. The email is the primary correlation key
// for inbound replies and is set once at creation.
type Inquiry struct {
	ID          int64      `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	Name        string     `json:"name" db:"name"`
	Subject     string     `json:"subject" db:"subject"`
	Message     string     `json:"message" db:"message"`
	Status      string     `json:"status" db:"status"`
	ReplyCount  int        `json:"reply_count" db:"reply_count"`
	LastReplyAt *time.Time `json:"last_reply_at,omitempty" db:"last_reply_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Populated on demand
	Replies []Reply `json:"replies,omitempty"`
}

// Reply is one message attached to an Inquiry, inbound (from the customer)
// or outbound (sent by staff).
type Reply struct {
	ID        int64     `json:"id" db:"id"`
	InquiryID int64     `json:"inquiry_id" db:"inquiry_id"`
	Position  int       `json:"position" db:"position"`
	At        time.Time `json:"at" db:"at"`
	Subject   string    `json:"subject" db:"subject"`
	Message   string    `json:"message" db:"message"`
	FromName  string    `json:"from_name" db:"from_name"`
	Inbound   bool      `json:"inbound" db:"inbound"`
	MessageID *string   `json:"message_id,omitempty" db:"message_id"`
	Note      *string   `json:"note,omitempty" db:"note"`
}

// ValidInquiryStatus reports whether s is one of the allowed status values.
func ValidInquiryStatus(s string) bool {
	switch s {
	case InquiryStatusNew, InquiryStatusRead, InquiryStatusReplied:
		return true
	default:
		return false
	}
}
