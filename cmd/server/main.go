// Package main runs the reference backend: events, tickets, polled chat, and streaming access.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/livecore/config"
	"github.com/aura-webinar/livecore/internal/auth"
	"github.com/aura-webinar/livecore/internal/chat"
	"github.com/aura-webinar/livecore/internal/entitlement"
	"github.com/aura-webinar/livecore/internal/events"
	"github.com/aura-webinar/livecore/internal/middleware"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/internal/reminder"
	"github.com/aura-webinar/livecore/internal/sessionlog"
	"github.com/aura-webinar/livecore/internal/streamaccess"
	"github.com/aura-webinar/livecore/internal/tickets"
	"github.com/aura-webinar/livecore/internal/zego"
	"github.com/aura-webinar/livecore/pkg/database"
	"github.com/aura-webinar/livecore/pkg/queue"
	"github.com/aura-webinar/livecore/pkg/redis"
	"github.com/aura-webinar/livecore/pkg/response"
	"github.com/aura-webinar/livecore/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	deps := streamaccess.Deps{}
	if cfg.AWS.Region != "" && cfg.AWS.ReplayBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReplayBucket:         cfg.AWS.ReplayBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			deps.Replays = s3Client
		}
	}
	if tokens := zego.NewTokens(cfg.Zego); tokens.Enabled() {
		deps.Tokens = tokens
	} else {
		logger.Warn("zego not configured, live capabilities disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events, with start reminders booked onto the Redis queue the worker drains
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, logger)
	reminders := reminder.NewScheduler(queue.NewReminderQueue(rdb.Client, logger), logger)
	eventHandler.SetReminders(reminders, cfg.Client.ReminderLead)

	// Tickets
	ticketRepo := tickets.NewRepository(pool)
	ticketHandler := tickets.NewHandler(ticketRepo, logger)

	// Streaming access and the watch ledger
	sessionLogRepo := sessionlog.NewRepository(pool)
	sessionLogHandler := sessionlog.NewHandler(sessionLogRepo, logger)
	deps.Events = eventRepo
	deps.Tickets = ticketRepo
	deps.Checker = entitlement.NewResolver(ticketRepo, logger)
	deps.Sessions = sessionLogRepo
	accessSvc := streamaccess.NewService(deps, logger)
	accessHandler := streamaccess.NewHandler(accessSvc, logger)

	// Chat
	chatHandler := chat.NewHandler(
		chat.NewRepository(pool),
		chat.NewRedisPresence(rdb.Client, chat.PresenceTTL, logger),
		accessSvc,
		chat.Config{MaxLength: cfg.Client.MaxMessageLength, ForbiddenWords: cfg.Client.ForbiddenWords},
		logger,
	)

	chatHandler.SetAudienceChangeHandler(func(eventID uuid.UUID, count int) {
		if err := eventRepo.UpdateViewers(context.Background(), eventID, count); err != nil {
			logger.Warn("update viewers", zap.Error(err), zap.String("event_id", eventID.String()))
		}
	})

	// Replay publication callback from the recording pipeline
	replayWebhook := events.NewWebhookHandler(eventRepo, cfg.Server.WebhookSecret, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	v1 := router.Group("/api/v1")

	// Auth (public)
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Anonymous callers get an answer too
	v1.GET("/streaming-access/check/:eventId", middleware.OptionalJWT(jwtService), accessHandler.Check)

	// Protected API (JWT required)
	admin := middleware.RequireRole(models.RoleAdmin)
	api := v1.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", admin, eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)
		api.PATCH("/events/:id/live", admin, eventHandler.SetLive)
		api.GET("/events/:id/attendees", middleware.RequireStaff(), sessionLogHandler.GetAttendees)

		// Tickets
		api.GET("/events/:id/tickets", ticketHandler.Mine)
		api.GET("/events/:id/tickets/all", admin, ticketHandler.ListAll)
		api.POST("/events/:id/tickets", admin, ticketHandler.Issue)
		api.PATCH("/tickets/:ticketId/status", admin, ticketHandler.SetStatus)

		// Streaming access
		api.GET("/streaming-access/:ticketId", accessHandler.Issue)
		api.POST("/streaming-access/:ticketId/record-access", accessHandler.RecordAccess)

		// Chat
		chatHandler.Register(api)
	}

	// Webhooks (shared secret, no JWT)
	router.POST("/webhooks/replay-ready", replayWebhook.ReplayReady)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
