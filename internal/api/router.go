package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pharmeast/pharmeast-backend/internal/middleware"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/version"
)

// NewRouter builds the gin engine with every route attached.
func NewRouter(s *Server) *gin.Engine {
	if s.cfg != nil && s.cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if s.cfg == nil || s.cfg.App.Debug {
		r.Use(gin.Logger())
	}

	r.GET("/healthz", s.handleHealth)
	if s.cfg == nil || s.cfg.Metrics.Enabled {
		path := "/metrics"
		if s.cfg != nil && s.cfg.Metrics.Path != "" {
			path = s.cfg.Metrics.Path
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}
	if s.uploads != nil {
		publicPath := "/uploads"
		if s.cfg != nil && s.cfg.Storage.PublicPath != "" {
			publicPath = s.cfg.Storage.PublicPath
		}
		r.Static(publicPath, s.uploads.BasePath())
	}

	pub := r.Group("/api")
	{
		pub.POST("/contact", s.handleContact)
		pub.POST("/subscribe", s.handleSubscribe)
		pub.GET("/unsubscribe", s.handleUnsubscribe)
		pub.POST("/track", s.handleTrack)
		pub.GET("/gallery", s.handlePublicGallery)

		webhookSecret := ""
		if s.cfg != nil {
			webhookSecret = s.cfg.Server.WebhookSecret
		}
		pub.POST("/inbound/webhook", middleware.WebhookSecret(webhookSecret), s.handleInboundWebhook)
	}

	admin := r.Group("/api/admin")
	admin.POST("/login", s.handleLogin)

	authed := admin.Group("", s.authMW.RequireAuth())
	{
		authed.GET("/events", s.handleEvents)

		authed.GET("/inquiries", s.handleListInquiries)
		authed.GET("/inquiries/:id", s.handleGetInquiry)
		authed.POST("/inquiries/:id/reply", s.handleReplyInquiry)
		authed.PUT("/inquiries/:id/status", s.handleUpdateInquiryStatus)
		authed.DELETE("/inquiries/:id/replies/:index", s.handleDeleteReply)

		authed.GET("/subscribers", s.handleListSubscribers)

		authed.GET("/campaigns", s.handleListCampaigns)
		authed.POST("/campaigns", s.handleCreateCampaign)
		authed.POST("/campaigns/:id/send", s.handleSendCampaign)

		authed.GET("/gallery", s.handleAdminGallery)
		authed.POST("/gallery", s.handleUploadGallery)
		authed.PUT("/gallery/:id/status", s.handleGalleryStatus)
		authed.DELETE("/gallery/:id", s.handleDeleteGallery)

		authed.GET("/analytics", s.handleAnalytics)

		staffOnly := authed.Group("/staff", s.authMW.RequireRole(models.RoleAdmin))
		staffOnly.GET("", s.handleListStaff)
		staffOnly.POST("", s.handleCreateStaff)
		staffOnly.PUT("/:id", s.handleUpdateStaff)
		staffOnly.PUT("/:id/password", s.handleSetStaffPassword)
		staffOnly.DELETE("/:id", s.handleDeleteStaff)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
}
