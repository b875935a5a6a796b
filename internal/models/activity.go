package models

import "time"

// ActivityEvent kinds recorded by the analytics endpoints.
const (
	ActivityPageView    = "page_view"
	ActivityContact     = "contact"
	ActivitySubscribe   = "subscribe"
	ActivityUnsubscribe = "unsubscribe"
)

// ActivityKinds lists every recorded kind, in dashboard order.
func ActivityKinds() []string {
	return []string{ActivityPageView, ActivityContact, ActivitySubscribe, ActivityUnsubscribe}
}

// ValidActivityKind reports whether kind is one of the recorded kinds.
func ValidActivityKind(kind string) bool {
	switch kind {
	case ActivityPageView, ActivityContact, ActivitySubscribe, ActivityUnsubscribe:
		return true
	default:
		return false
	}
}

// ActivityEvent is one row in the activity log.
type ActivityEvent struct {
	ID        int64     `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Path      string    `json:"path" db:"path"`
	Meta      []byte    `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
