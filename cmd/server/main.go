package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmeast/pharmeast-backend/internal/analytics"
	"github.com/pharmeast/pharmeast-backend/internal/api"
	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/campaigns"
	"github.com/pharmeast/pharmeast-backend/internal/config"
	"github.com/pharmeast/pharmeast-backend/internal/database"
	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/connector"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/correlator"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/poller"
	"github.com/pharmeast/pharmeast-backend/internal/events"
	"github.com/pharmeast/pharmeast-backend/internal/middleware"
	"github.com/pharmeast/pharmeast-backend/internal/notifications"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
	"github.com/pharmeast/pharmeast-backend/internal/storage"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := config.Get()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var rdb redis.Cmdable
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		rdb = client
	}

	uploads, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	inquiryRepo := repository.NewInquiryRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	galleryRepo := repository.NewGalleryRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	hub := events.NewHub()
	emailSvc := email.NewService(cfg.Email)
	notifier := notifications.New(hub, staffRepo, emailSvc)

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWT.Secret, cfg.Auth.JWT.AccessTokenTTL)
	authSvc := auth.NewService(staffRepo, jwtMgr)

	pipeline := correlator.New(inquiryRepo,
		correlator.WithNotifier(notifier),
		correlator.WithSelfAddress(cfg.IMAP.User),
	)

	campaignSvc := campaigns.NewService(campaignRepo, subscriberRepo, emailSvc, cfg.App.BaseURL,
		campaigns.WithBatch(cfg.Campaign.BatchSize, cfg.Campaign.BatchPause))
	analyticsSvc := analytics.NewService(activityRepo, rdb)

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Inquiries:   inquiryRepo,
		Subscribers: subscriberRepo,
		Staff:       staffRepo,
		Gallery:     galleryRepo,
		Campaigns:   campaignSvc,
		CampaignsRO: campaignRepo,
		Analytics:   analyticsSvc,
		Auth:        authSvc,
		Sender:      emailSvc,
		Notifier:    notifier,
		Pipeline:    pipeline,
		Hub:         hub,
		Uploads:     uploads,
		AuthMW:      middleware.NewAuthMiddleware(jwtMgr),
	})
	router := api.NewRouter(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IMAP.Configured() {
		fetcher := connector.NewFetcher(cfg.IMAP)
		p := poller.New(fetcher, pipeline, poller.WithInterval(cfg.IMAP.PollInterval()))
		p.Start(ctx)
		defer p.Stop()
	} else {
		log.Printf("imap: mailbox not configured, poller disabled")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("server: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("server: shutting down")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
}
