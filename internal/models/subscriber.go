package models

import "time"

const (
	SubscriberStatusActive       = "active"
	SubscriberStatusUnsubscribed = "unsubscribed"
)

// Subscriber is a newsletter recipient. Token is the opaque unsubscribe key
// embedded in campaign footers.
type Subscriber struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Status    string    `json:"status" db:"status"`
	Token     string    `json:"token" db:"token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
