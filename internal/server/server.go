package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"anoa.com/promptvault/internal/config"
	"anoa.com/promptvault/internal/metrics"
	"anoa.com/promptvault/internal/middleware"
	"anoa.com/promptvault/internal/scheduler"
	"anoa.com/promptvault/pkg/database"

	creditHttp "anoa.com/promptvault/internal/modules/credit/delivery/http"
	creditRepo "anoa.com/promptvault/internal/modules/credit/repository"
	creditService "anoa.com/promptvault/internal/modules/credit/service"

	notiHttp "anoa.com/promptvault/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/promptvault/internal/modules/notification/repository"
	notifService "anoa.com/promptvault/internal/modules/notification/service"

	relHttp "anoa.com/promptvault/internal/modules/relationship/delivery/http"
	relRepo "anoa.com/promptvault/internal/modules/relationship/repository"
	relService "anoa.com/promptvault/internal/modules/relationship/service"

	userRepo "anoa.com/promptvault/internal/modules/user/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const jobLockTTL = 30 * time.Minute

type Server struct {
	engine      *gin.Engine
	http        *http.Server
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   *scheduler.Scheduler
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	tx := database.NewTransactor(db, cfg.DBTxIsolation)
	userRepo := userRepo.NewUserRepository(db)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, tx, cfg.NotificationDedupWindow, time.Now)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc)

	// Relationship Module
	relationshipRepository := relRepo.NewRelationshipRepository(db)
	relationshipSvc := relService.NewRelationshipService(relationshipRepository, tx, notificationSvc, redisClient, cfg.CounterCacheTTL)
	relationshipHandler := relHttp.NewRelationshipHandler(relationshipSvc, redisClient, jobLockTTL)

	// Credit Module
	creditRepository := creditRepo.NewCreditRepository(db)
	ledger := creditService.NewLedger(creditRepository, tx, time.Now)
	dailySvc := creditService.NewDailyRewardService(creditRepository, tx, ledger, cfg.DailyBaseReward, cfg.DailyRewardLocation, time.Now)
	bonusSvc := creditService.NewBonusService(creditRepository, tx, ledger)
	creditHandler := creditHttp.NewCreditHandler(ledger, dailySvc, bonusSvc)

	// Maintenance jobs
	jobs := scheduler.NewScheduler(redisClient, jobLockTTL)
	if err := jobs.Register(scheduler.NewReconcileJob(relationshipSvc, cfg.ReconcileSchedule)); err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	router.Use(metrics.GinMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthz(db, redisClient))

	authMiddleware := middleware.NewAuthMiddleware(userRepo, cfg.JWTSecret)

	api := router.Group("/api")
	api.GET("/prompts/:prompt_id/counts", authMiddleware.OptionalAuth(), relationshipHandler.GetCounts)

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Admin routes
		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireAdmin())
		{
			adminGroup.POST("/credits/earn", creditHandler.AdminEarn)
			adminGroup.POST("/credits/adjust", creditHandler.AdminAdjust)
			adminGroup.POST("/maintenance/reconcile", relationshipHandler.Reconcile)
		}

		// Prompt relationship routes
		protected.POST("/prompts/:prompt_id/like", relationshipHandler.ToggleLike)
		protected.POST("/prompts/:prompt_id/favorite", relationshipHandler.ToggleFavorite)

		// Credit routes
		protected.GET("/credits/balance", creditHandler.GetBalance)
		protected.GET("/credits/transactions", creditHandler.GetTransactions)
		protected.GET("/credits/audit", creditHandler.GetAudit)
		protected.POST("/credits/spend", creditHandler.Spend)
		protected.POST("/credits/daily", creditHandler.ClaimDaily)
		protected.GET("/credits/daily", creditHandler.GetDailyStatus)
		protected.POST("/credits/bonuses/:kind", creditHandler.ClaimBonus)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		scheduler:   jobs,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the scheduler and serves until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.scheduler.Start()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🚀 Server listening on %s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP first, then waits for a running job; both share ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var httpErr error
	if s.http != nil {
		httpErr = s.http.Shutdown(ctx)
	}
	return errors.Join(httpErr, s.scheduler.Stop(ctx))
}

func healthz(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "ok"}
		code := http.StatusOK

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}

		if redisClient != nil {
			// The counter cache is optional, so Redis trouble only degrades.
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = "degraded"
			} else {
				status["redis"] = "ok"
			}
		}

		c.JSON(code, status)
	}
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
