// Package main runs the stream access gateway HTTP server with push updates and graceful shutdown.
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
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/config"
	"github.com/eventpass/streamgate/internal/auth"
	"github.com/eventpass/streamgate/internal/embed"
	"github.com/eventpass/streamgate/internal/middleware"
	"github.com/eventpass/streamgate/internal/models"
	"github.com/eventpass/streamgate/internal/realtime"
	"github.com/eventpass/streamgate/internal/streams"
	"github.com/eventpass/streamgate/internal/tickets"
	"github.com/eventpass/streamgate/internal/viewer"
	"github.com/eventpass/streamgate/internal/worker"
	"github.com/eventpass/streamgate/pkg/database"
	"github.com/eventpass/streamgate/pkg/logging"
	"github.com/eventpass/streamgate/pkg/queue"
	"github.com/eventpass/streamgate/pkg/redis"
	"github.com/eventpass/streamgate/pkg/response"
	"github.com/eventpass/streamgate/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatal("load config", zap.Error(err))
	}
	logger := logging.New(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
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

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.ReplaysBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReplaysBucket:        cfg.AWS.ReplaysBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("replay storage disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Tickets
	ticketRepo := tickets.NewRepository(pool)
	ticketHandler := tickets.NewHandler(ticketRepo, logger)

	// Stream access gateway
	opts := []streams.Option{
		streams.WithCache(streams.NewRedisCache(rdb.Client, time.Duration(cfg.Stream.CacheTTLSeconds)*time.Second)),
		streams.WithJobs(jobQueue),
		streams.WithPublisher(hub),
	}
	if s3Client != nil {
		opts = append(opts, streams.WithPresigner(s3Client))
	}
	streamService := streams.NewService(streams.NewRepository(pool), ticketRepo, logger, opts...)
	streamHandler := streams.NewHandler(streamService, cfg.Stream.WebhookSecret, logger)

	// Watch page
	loc, err := time.LoadLocation(cfg.Stream.DisplayTZ)
	if err != nil {
		logger.Warn("unknown display time zone, using UTC", zap.String("tz", cfg.Stream.DisplayTZ), zap.Error(err))
		loc = time.UTC
	}
	watchPage := viewer.NewPage(inProcessGateway(streamService), viewer.PageConfig{
		Options: viewer.Options{
			AllowRawMarkup: cfg.Stream.AllowRawEmbed,
			Policy:         embed.Policy{AllowedHosts: cfg.Stream.TrustedEmbedHosts},
			TicketsPath:    cfg.Stream.TicketsPath,
			Location:       loc,
		},
		PublicHost: cfg.Stream.PublicHost,
		PushPath:   "/ws",
	}, nil, logger)

	validateToken := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		if err := database.Ready(c.Request.Context(), pool); err != nil {
			logger.Warn("health check", zap.Error(err))
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			logger.Warn("health check", zap.Error(err))
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required; header or cookie)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/tickets", ticketHandler.ListMine)
		api.POST("/tickets", middleware.RequireRole(models.OperatorRoles...), ticketHandler.Issue)

		api.GET("/streaming/access/:ticketId", streamHandler.Access)
		api.GET("/watch/:ticketId", watchPage.Watch)

		operators := api.Group("/streams", middleware.RequireRole(models.OperatorRoles...))
		operators.POST("", streamHandler.Create)
		operators.GET("/:id", streamHandler.Get)
		operators.PATCH("/:id/live", streamHandler.SetLive)
		operators.PATCH("/:id/replay", streamHandler.SetReplay)
	}

	// Webhooks (no JWT; shared secret checked in handler)
	router.POST("/webhooks/replay-ready", streamHandler.ReplayReady)

	// WebSocket (token in query or cookie)
	router.GET("/ws", realtime.ServeWs(hub, logger, validateToken, streamService))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (view counts, replay uploads)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.Enabled {
		var uploader worker.Uploader
		if s3Client != nil {
			uploader = s3Client
		}
		processor := worker.NewProcessor(streamService, uploader, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("in-process worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// inProcessGateway serves the watch page from the gateway service directly,
// as the authenticated user of the request.
func inProcessGateway(svc *streams.Service) viewer.GatewayFor {
	return func(c *gin.Context) viewer.Gateway {
		userID, _ := middleware.UserID(c)
		return viewer.GatewayFunc(func(ctx context.Context, ticketID string) (*models.StreamSession, error) {
			id, err := uuid.Parse(ticketID)
			if err != nil {
				return nil, &viewer.AccessDeniedError{Status: http.StatusNotFound, Message: streams.ErrTicketNotFound.Error()}
			}
			session, err := svc.Access(ctx, id, userID)
			if err != nil {
				if status := streams.AccessStatus(err); status != http.StatusInternalServerError {
					return nil, &viewer.AccessDeniedError{Status: status, Message: err.Error()}
				}
				return nil, err
			}
			return session, nil
		})
	}
}
