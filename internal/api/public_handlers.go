package api

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email" binding:"required"`
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// handleContact opens a new inquiry thread from the public contact form.
func (s *Server) handleContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "name, email, subject and message are required")
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid email address")
		return
	}

	inq := &models.Inquiry{
		Email:   strings.ToLower(addr.Address),
		Name:    strings.TrimSpace(req.Name),
		Subject: strings.TrimSpace(req.Subject),
		Message: req.Message,
		Status:  models.InquiryStatusNew,
	}
	id, err := s.inquiries.Create(c.Request.Context(), inq)
	if err != nil {
		s.logger.Printf("contact: create inquiry failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not save your message")
		return
	}
	inq.ID = id

	if s.analytics != nil {
		if err := s.analytics.Track(c.Request.Context(), models.ActivityContact, "/contact"); err != nil {
			s.logger.Printf("contact: track failed: %v", err)
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyNewInquiry(c.Request.Context(), inq)
	}

	ok(c, gin.H{"id": id})
}

type subscribeRequest struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "email is required")
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid email address")
		return
	}

	sub, err := s.subscribers.Subscribe(c.Request.Context(), addr.Address)
	if err != nil {
		s.logger.Printf("subscribe: %v", err)
		fail(c, http.StatusInternalServerError, "could not subscribe")
		return
	}
	if s.analytics != nil {
		if err := s.analytics.Track(c.Request.Context(), models.ActivitySubscribe, "/subscribe"); err != nil {
			s.logger.Printf("subscribe: track failed: %v", err)
		}
	}
	ok(c, gin.H{"email": sub.Email})
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusBadRequest, "token is required")
		return
	}
	// Idempotent from the caller's view: an unknown token gets the same
	// response as a completed unsubscribe, so links cannot be probed.
	if err := s.subscribers.UnsubscribeByToken(c.Request.Context(), token); err == nil {
		if s.analytics != nil {
			if terr := s.analytics.Track(c.Request.Context(), models.ActivityUnsubscribe, "/unsubscribe"); terr != nil {
				s.logger.Printf("unsubscribe: track failed: %v", terr)
			}
		}
	}
	ok(c, gin.H{"message": "you have been unsubscribed"})
}

type trackRequest struct {
	Kind string `json:"kind" binding:"required"`
	Path string `json:"path"`
}

func (s *Server) handleTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "kind is required")
		return
	}
	if err := s.analytics.Track(c.Request.Context(), req.Kind, req.Path); err != nil {
		fail(c, http.StatusBadRequest, "unknown activity kind")
		return
	}
	ok(c, nil)
}

// handlePublicGallery lists approved images only.
func (s *Server) handlePublicGallery(c *gin.Context) {
	images, err := s.gallery.List(c.Request.Context(), models.GalleryStatusApproved, 100, 0)
	if err != nil {
		s.logger.Printf("gallery: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not load gallery")
		return
	}
	ok(c, gin.H{"images": images})
}
