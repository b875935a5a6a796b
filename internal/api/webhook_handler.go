package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/correlator"
)

type webhookRequest struct {
	Raw string `json:"raw" binding:"required"`
}

// handleInboundWebhook accepts one raw MIME message from a mail provider
// push hook and runs it through the same pipeline as the IMAP poller.
func (s *Server) handleInboundWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "raw message is required")
		return
	}

	res, err := s.pipeline.Process(c.Request.Context(), []byte(req.Raw))
	if err != nil {
		if errors.Is(err, correlator.ErrParse) {
			fail(c, http.StatusBadRequest, "message could not be parsed")
			return
		}
		s.logger.Printf("webhook: pipeline failed: %v", err)
		fail(c, http.StatusInternalServerError, "message could not be processed")
		return
	}

	switch res.Outcome {
	case correlator.OutcomeAppended:
		ok(c, gin.H{"inquiry_id": res.Inquiry.ID, "strategy": res.Strategy})
	default:
		ok(c, gin.H{"ignored": true, "reason": string(res.Outcome)})
	}
}
