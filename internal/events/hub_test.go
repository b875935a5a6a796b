package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.Len())

	hub.BroadcastThreadUpdate(42, "a@x.com", "Order Q", "hello")

	for _, ch := range []chan string{a, b} {
		select {
		case raw := <-ch:
			var ev ThreadUpdate
			require.NoError(t, json.Unmarshal([]byte(raw), &ev))
			require.Equal(t, TypeThreadUpdate, ev.Type)
			require.Equal(t, SubtypeNewReply, ev.Subtype)
			require.EqualValues(t, 42, ev.InquiryID)
			require.Equal(t, "a@x.com", ev.Sender)
		default:
			t.Fatal("expected event on subscriber channel")
		}
	}
}

func TestSlowSubscriberIsSkipped(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe()
	for i := 0; i < cap(slow); i++ {
		hub.BroadcastThreadUpdate(1, "a@x.com", "s", "b")
	}
	// Buffer is full; this must not block.
	hub.BroadcastThreadUpdate(2, "a@x.com", "s", "b")
	require.Equal(t, cap(slow), len(slow))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)
	require.Zero(t, hub.Len())
}
