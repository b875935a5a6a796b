package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types pushed to the admin dashboard stream.
const (
	TypeThreadUpdate = "thread_update"

	SubtypeNewReply   = "new_reply"
	SubtypeNewInquiry = "new_inquiry"
)

// ThreadUpdate is the payload broadcast when an inbound reply is threaded.
type ThreadUpdate struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	InquiryID int64  `json:"inquiry_id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Hub owns the set of live dashboard connections. It replaces the old
// process-global connection map: built once at startup, passed to whoever
// broadcasts. All operations are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

// Subscribe registers a new dashboard connection and returns its channel.
func (h *Hub) Subscribe() chan string {
	ch := make(chan string, 10)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a connection channel.
func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastThreadUpdate fans a new-reply event out to every subscriber.
// A subscriber whose buffer is full is skipped; delivery is best-effort.
func (h *Hub) BroadcastThreadUpdate(inquiryID int64, sender, subject, body string) {
	h.Broadcast(ThreadUpdate{
		Type:      TypeThreadUpdate,
		Subtype:   SubtypeNewReply,
		InquiryID: inquiryID,
		Sender:    sender,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastNewInquiry announces a fresh contact-form thread.
func (h *Hub) BroadcastNewInquiry(inquiryID int64, sender, subject, body string) {
	h.Broadcast(ThreadUpdate{
		Type:      TypeThreadUpdate,
		Subtype:   SubtypeNewInquiry,
		InquiryID: inquiryID,
		Sender:    sender,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().Unix(),
	})
}

// Broadcast sends any JSON-encodable payload to all subscribers.
func (h *Hub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := string(data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Slow consumer; drop this event for it.
		}
	}
}
