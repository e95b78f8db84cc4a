package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-engine/internal/chat"
	"chat-engine/internal/config"
	"chat-engine/internal/db"
	"chat-engine/internal/handlers"
	"chat-engine/internal/invites"
	"chat-engine/internal/logger"
	"chat-engine/internal/middleware"
	"chat-engine/internal/notify"
	"chat-engine/internal/observability"
	"chat-engine/internal/push"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/repositories"
	"chat-engine/internal/storage"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, "chat-engine", cfg.OTLPEndpoint)
	if err != nil {
		zlog.Fatalw("failed to set up tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		zlog.Fatalw("failed to connect to db", "error", err)
	}
	defer database.Close()

	userRepo := repositories.NewUserRepo(database)
	if err := userRepo.EnsureSystemUser(ctx, cfg.SystemUserID, cfg.SystemUserName); err != nil {
		zlog.Fatalw("failed to ensure system user", "error", err)
	}
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	listingRepo := repositories.NewListingRepo(database)
	reviewRepo := repositories.NewReviewRepo(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, zlog)
	defer publisher.Close()
	zlog.Infow("event publisher ready", "mode", rabbitmq.Mode(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-engine", cfg.Environment, zlog)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	hub := ws.NewHub(zlog)
	pusher := push.NewExpoClient(cfg.PushEndpoint)
	files := storage.NewLocalStore(cfg.UploadsDir, zlog)

	dispatcher := notify.NewDispatcher(hub, pusher, publisher, userRepo, zlog)
	chatSvc := chat.NewService(chatRepo, messageRepo, userRepo, listingRepo, files, dispatcher, cfg.SystemUserID, zlog)
	engine := invites.NewEngine(chatRepo, messageRepo, userRepo, listingRepo, reviewRepo, dispatcher, chatSvc, cfg.SystemUserID, zlog)

	reviewHandler := handlers.NewReviewHandler(reviewRepo, userRepo, listingRepo, engine, audit, zlog)
	socketHandler := ws.NewSocketHandler(hub, chatSvc, func(token string) (int, error) {
		return middleware.ParseToken(cfg.JWTSecret, token)
	}, audit, zlog)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-engine"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(redisClient, "rl:chat", cfg.RateLimitPerMin, time.Minute, zlog)

	router.GET("/ws", socketHandler.Handle)

	reviews := router.Group("/reviews")
	reviews.GET("/user/:user_id", reviewHandler.ListReviews)
	reviews.POST("", auth, limiter.ByUser(), reviewHandler.AddReview)
	reviews.POST("/:id/reply", auth, limiter.ByUser(), reviewHandler.ReplyReview)
	reviews.DELETE("/:id", auth, limiter.ByUser(), reviewHandler.DeleteReview)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zlog.Infow("server listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatalw("server error", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warnw("server shutdown failed", "error", err)
	}
}
