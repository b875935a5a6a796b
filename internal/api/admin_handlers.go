package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/campaigns"
	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/middleware"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "email and password are required")
		return
	}

	account, token, err := s.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			fail(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.logger.Printf("login: %v", err)
		fail(c, http.StatusInternalServerError, "login failed")
		return
	}

	ok(c, gin.H{
		"token": token,
		"staff": gin.H{
			"id":    account.ID,
			"email": account.Email,
			"name":  account.Name,
			"role":  account.Role,
		},
	})
}

func (s *Server) handleListInquiries(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidInquiryStatus(status) {
		fail(c, http.StatusBadRequest, "unknown status filter")
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	inquiries, err := s.inquiries.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		s.logger.Printf("inquiries: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not list inquiries")
		return
	}
	ok(c, gin.H{"inquiries": inquiries})
}

func (s *Server) handleGetInquiry(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid inquiry id")
		return
	}
	inq, err := s.inquiries.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "inquiry not found")
			return
		}
		s.logger.Printf("inquiries: get %d failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "could not load inquiry")
		return
	}
	ok(c, gin.H{"inquiry": inq})
}

type replyRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message" binding:"required"`
	Note    string `json:"note"`
}

// handleReplyInquiry appends a staff reply to the thread and emails it to the
// customer. The append succeeds even when the outbound email fails; the
// response reports both.
func (s *Server) handleReplyInquiry(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid inquiry id")
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "message is required")
		return
	}

	inq, err := s.inquiries.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "inquiry not found")
			return
		}
		s.logger.Printf("reply: load inquiry %d failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "could not load inquiry")
		return
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "Re: " + inq.Subject
	}

	fromName := ""
	if claims := middleware.ClaimsFrom(c); claims != nil {
		fromName = claims.Email
	}

	reply := &models.Reply{
		Subject:  subject,
		Message:  req.Message,
		FromName: fromName,
		Inbound:  false,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		reply.Note = &note
	}
	if err := s.inquiries.AppendReply(c.Request.Context(), id, reply); err != nil {
		s.logger.Printf("reply: append to inquiry %d failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "could not save reply")
		return
	}

	emailSent := false
	if s.sender != nil && s.sender.Enabled() {
		err := s.sender.SendTemplate(
			[]string{inq.Email},
			"reply",
			map[string]any{
				"name":      inq.Name,
				"body":      req.Message,
				"from_name": fromName,
			},
			&email.SendOptions{Subject: subject},
		)
		if err != nil {
			s.logger.Printf("reply: email to %s failed: %v", inq.Email, err)
		} else {
			emailSent = true
		}
	}

	ok(c, gin.H{"position": reply.Position, "email_sent": emailSent})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleUpdateInquiryStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid inquiry id")
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidInquiryStatus(req.Status) {
		fail(c, http.StatusBadRequest, "status must be new, read or replied")
		return
	}
	if err := s.inquiries.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "inquiry not found")
			return
		}
		s.logger.Printf("inquiries: status %d failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "could not update status")
		return
	}
	ok(c, nil)
}

func (s *Server) handleDeleteReply(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid inquiry id")
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		fail(c, http.StatusBadRequest, "invalid reply index")
		return
	}
	if err := s.inquiries.DeleteReplyAt(c.Request.Context(), id, index); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "reply not found")
			return
		}
		s.logger.Printf("inquiries: delete reply %d/%d failed: %v", id, index, err)
		fail(c, http.StatusInternalServerError, "could not delete reply")
		return
	}
	ok(c, nil)
}

func (s *Server) handleListSubscribers(c *gin.Context) {
	subs, err := s.subscribers.List(c.Request.Context(), intQuery(c, "limit", 100), intQuery(c, "offset", 0))
	if err != nil {
		s.logger.Printf("subscribers: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not list subscribers")
		return
	}
	ok(c, gin.H{"subscribers": subs})
}

func (s *Server) handleListCampaigns(c *gin.Context) {
	list, err := s.campaignList.List(c.Request.Context(), intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		s.logger.Printf("campaigns: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not list campaigns")
		return
	}
	ok(c, gin.H{"campaigns": list})
}

type campaignRequest struct {
	Subject      string `json:"subject" binding:"required"`
	BodyMarkdown string `json:"body_markdown" binding:"required"`
}

func (s *Server) handleCreateCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "subject and body_markdown are required")
		return
	}
	campaign, err := s.campaignSvc.Create(c.Request.Context(), req.Subject, req.BodyMarkdown)
	if err != nil {
		s.logger.Printf("campaigns: create failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not create campaign")
		return
	}
	ok(c, gin.H{"campaign": campaign})
}

func (s *Server) handleSendCampaign(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid campaign id")
		return
	}
	res, err := s.campaignSvc.Send(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, campaigns.ErrAlreadySent):
			fail(c, http.StatusConflict, "campaign was already sent")
		case errors.Is(err, repository.ErrNotFound):
			fail(c, http.StatusNotFound, "campaign not found")
		default:
			s.logger.Printf("campaigns: send %d failed: %v", id, err)
			fail(c, http.StatusInternalServerError, "could not send campaign")
		}
		return
	}
	ok(c, gin.H{"sent": res.Sent, "failed": res.Failed, "status": res.Status})
}

func (s *Server) handleAdminGallery(c *gin.Context) {
	images, err := s.gallery.List(c.Request.Context(), c.Query("status"), intQuery(c, "limit", 100), intQuery(c, "offset", 0))
	if err != nil {
		s.logger.Printf("gallery: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not list gallery")
		return
	}
	ok(c, gin.H{"images": images})
}

func (s *Server) handleUploadGallery(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, "image file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "could not read upload")
		return
	}
	defer src.Close()

	name, err := s.uploads.Save(file.Filename, src)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	img := &models.GalleryImage{
		Title:       c.PostForm("title"),
		FilePath:    name,
		ContentType: file.Header.Get("Content-Type"),
		SizeBytes:   file.Size,
		Status:      models.GalleryStatusPending,
	}
	id, err := s.gallery.Create(c.Request.Context(), img)
	if err != nil {
		s.logger.Printf("gallery: create failed: %v", err)
		if rerr := s.uploads.Remove(name); rerr != nil {
			s.logger.Printf("gallery: orphan cleanup failed: %v", rerr)
		}
		fail(c, http.StatusInternalServerError, "could not save image")
		return
	}
	ok(c, gin.H{"id": id, "file_path": name})
}

func (s *Server) handleGalleryStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid image id")
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "status is required")
		return
	}
	if err := s.gallery.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "image not found")
			return
		}
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, nil)
}

func (s *Server) handleDeleteGallery(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid image id")
		return
	}
	img, err := s.gallery.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "image not found")
			return
		}
		fail(c, http.StatusInternalServerError, "could not load image")
		return
	}
	if err := s.gallery.Delete(c.Request.Context(), id); err != nil {
		s.logger.Printf("gallery: delete %d failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "could not delete image")
		return
	}
	if err := s.uploads.Remove(img.FilePath); err != nil {
		s.logger.Printf("gallery: remove file %s failed: %v", img.FilePath, err)
	}
	ok(c, nil)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	summary, err := s.analytics.Summarize(c.Request.Context(), intQuery(c, "days", 30))
	if err != nil {
		s.logger.Printf("analytics: summarize failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not load analytics")
		return
	}
	ok(c, gin.H{"analytics": summary})
}

func (s *Server) handleListStaff(c *gin.Context) {
	list, err := s.staff.List(c.Request.Context())
	if err != nil {
		s.logger.Printf("staff: list failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not list staff")
		return
	}
	for i := range list {
		list[i].PasswordHash = ""
	}
	ok(c, gin.H{"staff": list})
}

type createStaffRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (s *Server) handleCreateStaff(c *gin.Context) {
	var req createStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "email, name, password and role are required")
		return
	}
	if err := s.validatePassword(req.Password); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !models.ValidRole(req.Role) {
		fail(c, http.StatusBadRequest, "unknown role")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not hash password")
		return
	}
	id, err := s.staff.Create(c.Request.Context(), &models.Staff{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		s.logger.Printf("staff: create failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not create staff account")
		return
	}
	ok(c, gin.H{"id": id})
}

type updateStaffRequest struct {
	Name   string `json:"name" binding:"required"`
	Role   string `json:"role" binding:"required"`
	Active *bool  `json:"active" binding:"required"`
}

func (s *Server) handleUpdateStaff(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid staff id")
		return
	}
	var req updateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "name, role and active are required")
		return
	}
	account, err := s.staff.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "staff account not found")
			return
		}
		fail(c, http.StatusInternalServerError, "could not load staff account")
		return
	}
	account.Name = req.Name
	account.Role = req.Role
	account.Active = *req.Active
	if err := s.staff.Update(c.Request.Context(), account); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, nil)
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleSetStaffPassword(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid staff id")
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "password is required")
		return
	}
	if err := s.validatePassword(req.Password); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not hash password")
		return
	}
	if err := s.staff.SetPassword(c.Request.Context(), id, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "staff account not found")
			return
		}
		fail(c, http.StatusInternalServerError, "could not set password")
		return
	}
	ok(c, nil)
}

func (s *Server) handleDeleteStaff(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid staff id")
		return
	}
	if claims := middleware.ClaimsFrom(c); claims != nil && claims.StaffID == id {
		fail(c, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := s.staff.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusNotFound, "staff account not found")
			return
		}
		fail(c, http.StatusInternalServerError, "could not delete staff account")
		return
	}
	ok(c, nil)
}

func (s *Server) validatePassword(password string) error {
	min := 8
	if s.cfg != nil && s.cfg.Auth.Password.MinLength > 0 {
		min = s.cfg.Auth.Password.MinLength
	}
	if len(password) < min {
		return fmt.Errorf("password must be at least %d characters", min)
	}
	return nil
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func intQuery(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
