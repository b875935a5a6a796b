package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// handleEvents streams thread updates to the admin dashboard over SSE.
func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.SSEvent("connected", "ok")
	c.Writer.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return
			}
			c.SSEvent("thread_update", msg)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", "ping")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
