package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logger"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := logger.Setup(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	database, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	var typing chat.TypingStore
	switch cfg.TypingBackend {
	case config.TypingBackendRedis:
		redisClient, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		typing = repositories.NewRedisTypingStore(redisClient)
	default:
		typing = repositories.NewTypingRepo(database)
	}
	log.Info().Str("backend", cfg.TypingBackend).Msg("typing store ready")

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Str("reason", rabbitmq.PublisherNoopReason(publisher)).Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	svc := chat.NewService(conversationRepo, messageRepo, userRepo, typing, hub, chat.Options{
		TypingTTL: cfg.TypingTTL,
		Audit:     audit,
	})
	go svc.RunTypingSweeper(ctx, cfg.TypingSweepInterval)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret)
	conversationHandler := handlers.NewConversationHandler(svc, audit)
	messageHandler := handlers.NewMessageHandler(svc)
	userHandler := handlers.NewUserHandler(svc)
	socketHandler := ws.NewSocketHandler(hub, svc, authenticator, cfg.WSSendBuffer)

	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestLogger())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", socketHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(authenticator))
	api.GET("/conversations", conversationHandler.ListConversations)
	api.POST("/conversations", conversationHandler.CreateConversation)
	api.GET("/conversations/unread", conversationHandler.Unread)
	api.GET("/conversations/:conversation_id", conversationHandler.GetConversation)
	api.PATCH("/conversations/:conversation_id/settings", conversationHandler.UpdateSettings)
	api.POST("/conversations/:conversation_id/read", conversationHandler.MarkRead)
	api.GET("/conversations/:conversation_id/typing", conversationHandler.Typing)
	api.GET("/conversations/:conversation_id/messages", messageHandler.ListMessages)
	api.POST("/conversations/:conversation_id/messages", messageHandler.PostMessage)
	api.PATCH("/messages/:message_id", messageHandler.EditMessage)
	api.DELETE("/messages/:message_id", messageHandler.DeleteMessage)
	api.GET("/users/search", userHandler.Search)
	api.GET("/users/online", userHandler.Online)
	handlers.RegisterDebugRoutes(api, audit, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("messaging service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
