package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sibysi/agent-directory/internal/config"
	"github.com/sibysi/agent-directory/internal/handler"
	"github.com/sibysi/agent-directory/internal/metrics"
	"github.com/sibysi/agent-directory/internal/payment"
	"github.com/sibysi/agent-directory/internal/repository"
	"github.com/sibysi/agent-directory/internal/service"
	"github.com/sibysi/agent-directory/internal/source"
	"gorm.io/gorm"
)

type Server struct {
	e           *echo.Echo
	txRepo      repository.TransactionRepository
	listingRepo repository.ListingRepository
	queueRepo   repository.ManualTaskRepository
	logRepo     repository.FulfillmentLogRepository
	revenueRepo repository.AgentRevenueRepository
	notifyRepo  repository.NotificationRepository
	runner      *service.Runner
	sha         string
	build       string
}

func New(db *gorm.DB, cfg *config.Config, sha, buildTime string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			return strings.HasSuffix(u.Hostname(), "vercel.app"), nil
		},
	}))

	txRepo := repository.NewTransactionRepository(db)
	listingRepo := repository.NewListingRepository(db)
	queueRepo := repository.NewManualTaskRepository(db)
	logRepo := repository.NewFulfillmentLogRepository(db)
	revenueRepo := repository.NewAgentRevenueRepository(db)
	notifyRepo := repository.NewNotificationRepository(db)

	dispatcher := source.NewDispatcher(source.Config{
		RapidAPIKey:      cfg.RapidAPIKey,
		HuggingFaceToken: cfg.HuggingFaceToken,
	}, queueRepo)

	// Refunds are disabled when no Stripe key is configured; failed
	// transactions then stay failed with a recorded refund error.
	var payments payment.Client
	if cfg.StripeSecretKey != "" {
		sc, err := payment.NewStripeClient(cfg.StripeSecretKey)
		if err != nil {
			e.Logger.Fatalf("failed to init stripe client: %v", err)
		}
		payments = sc
	} else {
		e.Logger.Warn("STRIPE_SECRET_KEY not set, refunds disabled")
	}

	revenueSvc := service.NewRevenueService(revenueRepo)
	notifySvc := service.NewNotificationService(notifyRepo)
	fulfillSvc := service.NewFulfillmentService(txRepo, listingRepo, queueRepo, logRepo, dispatcher, payments, revenueSvc, notifySvc)
	runner := service.NewRunner(fulfillSvc, cfg.FulfillmentWorkers, 0)

	fulfillHandler := handler.NewFulfillmentHandler(fulfillSvc, runner)
	agentHandler := handler.NewAgentHandler(revenueSvc, notifySvc)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api/v1")
	api.POST("/fulfillment/process/:id", fulfillHandler.Trigger)
	api.GET("/fulfillment/status/:id", fulfillHandler.Status)
	api.GET("/fulfillment/manual/queue", fulfillHandler.ManualQueue)
	api.POST("/fulfillment/manual/complete", fulfillHandler.CompleteManual)
	api.POST("/fulfillment/calculate-profit", fulfillHandler.CalculateProfit)
	api.GET("/fulfillment/stats", fulfillHandler.Stats)
	api.POST("/fulfillment/webhook/source-complete", fulfillHandler.SourceComplete)
	api.GET("/agents/:id/revenue", agentHandler.Revenue)
	api.GET("/agents/:id/notifications", agentHandler.Notifications)

	return &Server{
		e:           e,
		txRepo:      txRepo,
		listingRepo: listingRepo,
		queueRepo:   queueRepo,
		logRepo:     logRepo,
		revenueRepo: revenueRepo,
		notifyRepo:  notifyRepo,
		runner:      runner,
		sha:         sha,
		build:       buildTime,
	}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// SetDB swaps in the real connection once the async connect finishes.
func (s *Server) SetDB(db *gorm.DB) {
	s.txRepo.SetDB(db)
	s.listingRepo.SetDB(db)
	s.queueRepo.SetDB(db)
	s.logRepo.SetDB(db)
	s.revenueRepo.SetDB(db)
	s.notifyRepo.SetDB(db)
}

// Shutdown drains the fulfillment runner so in-flight transactions
// finish before the process exits.
func (s *Server) Shutdown() {
	s.runner.Stop()
}
