package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"connection-chat/internal/auth"
	"connection-chat/internal/cache"
	"connection-chat/internal/config"
	"connection-chat/internal/db"
	grpcserver "connection-chat/internal/grpc"
	"connection-chat/internal/handlers"
	"connection-chat/internal/logging"
	"connection-chat/internal/middleware"
	"connection-chat/internal/observability"
	"connection-chat/internal/presence"
	"connection-chat/internal/rabbitmq"
	"connection-chat/internal/relay"
	"connection-chat/internal/repositories"
	"connection-chat/internal/services"
	"connection-chat/internal/telemetry"
	"connection-chat/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(config.IsProduction(cfg.Environment), cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	busOpts := []relay.Option{relay.WithMirror(publisher)}
	switch cfg.RelayBackend {
	case config.RelayRedis:
		busOpts = append(busOpts, relay.WithBridge(relay.NewRedisBridge(rdb, relay.DefaultRedisChannel, logger)))
	case config.RelayNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		busOpts = append(busOpts, relay.WithBridge(relay.NewNATSBridge(nc, relay.DefaultNATSSubject, logger)))
	}
	bus := relay.NewBus(logger, busOpts...)

	connectionRepo := repositories.NewConnectionRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	identities := cache.NewIdentityCache(cache.NewRedisStore(rdb, "chat:"), profileRepo, cfg.IdentityCacheTTL, logger)
	tracker := presence.NewTracker(rdb, cfg.PresenceTTL, logger)

	directory := services.NewChatDirectory(connectionRepo, chatRepo, profileRepo, tracker, services.WithLogger(logger))
	ledger := services.NewMessageLedger(messageRepo, directory, identities, services.WithLogger(logger))
	reconciler := services.NewReconciler(connectionRepo, services.WithLogger(logger))
	messenger := services.NewMessenger(directory, ledger, reconciler, bus, services.WithLogger(logger))

	hub := ws.NewHub(logger)
	unsubscribe := bus.Subscribe(hub.Deliver)
	defer unsubscribe()

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	gateway := ws.NewGateway(hub, validator, messenger, tracker, connectionRepo, bus, logger)

	health := grpcserver.NewHealthServer(cfg.ServiceName, logger,
		grpcserver.Check{Name: "postgres", Ping: database.PingContext},
		grpcserver.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	if config.IsProduction(cfg.Environment) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		handlers.RequestID(),
		observability.HTTPMetricsMiddleware(),
		logging.GinMiddleware(logger),
	)

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	handlers.RegisterHealthRoutes(router, health)
	handlers.RegisterDebugRoutes(router, audit, identities, cfg.DebugRoutes)
	router.GET("/ws", gateway.Handle)

	api := router.Group("", middleware.AuthMiddleware(validator))
	handlers.NewChatHandler(directory, ledger, messenger, audit, logger).Register(api)

	go func() {
		if err := bus.Run(ctx); err != nil {
			logger.Error("relay bridge stopped", zap.Error(err))
		}
	}()
	go reconciler.Run(ctx, cfg.ReconcileInterval)
	go health.Watch(ctx, 15*time.Second)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("relay", cfg.RelayBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	health.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
