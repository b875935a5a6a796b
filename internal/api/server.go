package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmeast/pharmeast-backend/internal/analytics"
	"github.com/pharmeast/pharmeast-backend/internal/campaigns"
	"github.com/pharmeast/pharmeast-backend/internal/config"
	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/correlator"
	"github.com/pharmeast/pharmeast-backend/internal/events"
	"github.com/pharmeast/pharmeast-backend/internal/middleware"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/storage"
)

type inquiryStore interface {
	Create(ctx context.Context, inq *models.Inquiry) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Inquiry, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.Inquiry, error)
	AppendReply(ctx context.Context, inquiryID int64, reply *models.Reply) error
	DeleteReplyAt(ctx context.Context, inquiryID int64, index int) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

type pipeline interface {
	Process(ctx context.Context, raw []byte) (correlator.Result, error)
}

type subscriberStore interface {
	Subscribe(ctx context.Context, email string) (*models.Subscriber, error)
	UnsubscribeByToken(ctx context.Context, token string) error
	List(ctx context.Context, limit, offset int) ([]models.Subscriber, error)
}

type staffStore interface {
	Create(ctx context.Context, s *models.Staff) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Staff, error)
	List(ctx context.Context) ([]models.Staff, error)
	Update(ctx context.Context, s *models.Staff) error
	SetPassword(ctx context.Context, id int64, hash string) error
	Delete(ctx context.Context, id int64) error
}

type galleryStore interface {
	Create(ctx context.Context, img *models.GalleryImage) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.GalleryImage, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.GalleryImage, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
}

type campaignManager interface {
	Create(ctx context.Context, subject, bodyMarkdown string) (*models.Campaign, error)
	Send(ctx context.Context, id int64) (*campaigns.SendResult, error)
}

type campaignLister interface {
	List(ctx context.Context, limit, offset int) ([]models.Campaign, error)
}

type analyticsService interface {
	Track(ctx context.Context, kind, path string) error
	Summarize(ctx context.Context, days int) (*analytics.Summary, error)
}

type loginService interface {
	Login(ctx context.Context, email, password string) (*models.Staff, string, error)
}

type templateSender interface {
	Enabled() bool
	From() string
	SendTemplate(to []string, name string, data map[string]any, opts *email.SendOptions) error
}

type inquiryNotifier interface {
	NotifyNewInquiry(ctx context.Context, inq *models.Inquiry)
}

// Server holds every handler dependency. Construct it once in main and hand
// it to NewRouter.
type Server struct {
	cfg *config.Config

	inquiries    inquiryStore
	subscribers  subscriberStore
	staff        staffStore
	gallery      galleryStore
	campaignSvc  campaignManager
	campaignList campaignLister
	analytics    analyticsService
	authSvc      loginService
	sender       templateSender
	notifier     inquiryNotifier
	pipeline     pipeline
	hub          *events.Hub
	uploads      *storage.Store
	authMW       *middleware.AuthMiddleware
	logger       *log.Logger
}

// ServerOption customizes the server.
type ServerOption func(*Server)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Deps bundles the constructor arguments; every field is required unless
// noted otherwise.
type Deps struct {
	Config      *config.Config
	Inquiries   inquiryStore
	Subscribers subscriberStore
	Staff       staffStore
	Gallery     galleryStore
	Campaigns   campaignManager
	CampaignsRO campaignLister
	Analytics   analyticsService
	Auth        loginService
	Sender      templateSender
	Notifier    inquiryNotifier
	Pipeline    pipeline
	Hub         *events.Hub
	Uploads     *storage.Store
	AuthMW      *middleware.AuthMiddleware
}

// NewServer wires the handlers.
func NewServer(deps Deps, opts ...ServerOption) *Server {
	s := &Server{
		cfg:          deps.Config,
		inquiries:    deps.Inquiries,
		subscribers:  deps.Subscribers,
		staff:        deps.Staff,
		gallery:      deps.Gallery,
		campaignSvc:  deps.Campaigns,
		campaignList: deps.CampaignsRO,
		analytics:    deps.Analytics,
		authSvc:      deps.Auth,
		sender:       deps.Sender,
		notifier:     deps.Notifier,
		pipeline:     deps.Pipeline,
		hub:          deps.Hub,
		uploads:      deps.Uploads,
		authMW:       deps.AuthMW,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func ok(c *gin.Context, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["success"] = true
	c.JSON(http.StatusOK, data)
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}
