package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"narrative-server/internal/config"
	"narrative-server/internal/database"
	"narrative-server/internal/generation"
	"narrative-server/internal/handler"
	"narrative-server/internal/logger"
	"narrative-server/internal/messaging"
	"narrative-server/internal/middleware"
	"narrative-server/internal/models"
	"narrative-server/internal/repository"
	"narrative-server/internal/session"
	"narrative-server/internal/websocket"
	"narrative-server/pkg/taskmanager"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// В production .env может не использоваться
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	cfg.LogSummary(log)

	// --- External Connections ---
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStartup()

	pool, err := database.SetupPool(startupCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.ApplyMigrations(pool, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	redisClient, err := setupRedis(startupCtx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	var events messaging.StoryEventPublisher = messaging.NoopStoryEventPublisher{}
	var mqConn *amqp.Connection
	if cfg.RabbitMQURL != "" {
		mqConn, err = messaging.ConnectRabbitMQ(startupCtx, cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		publisher, err := messaging.NewRabbitMQStoryEventPublisher(mqConn, cfg.StoryEventsQueue, log)
		if err != nil {
			log.Fatal("Failed to create story event publisher", zap.Error(err))
		}
		defer publisher.Close()
		events = publisher
	} else {
		log.Info("RABBITMQ_URL is empty, story events are not published")
	}

	// --- Generators ---
	aiClient, err := generation.NewAIClient(cfg.AI, log)
	if err != nil {
		log.Fatal("Failed to create AI client", zap.Error(err))
	}
	speech, images := generation.NewMediaClients(cfg.AI)
	narrationStore := repository.NewRedisNarrationStore(redisClient, cfg.NarrationTTL, log)

	// --- Dependency Injection ---
	stories := repository.NewCachedStoryRepository(
		repository.NewPgStoryRepository(pool, log),
		redisClient, cfg.StoryCacheTTL, log,
	)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := websocket.NewHub(cfg.GetAllowedOrigins(), log)
	go hub.Run(rootCtx)

	tasks := taskmanager.New(taskmanager.Config{MaxTasks: cfg.TaskMaxActive, Timeout: cfg.AI.Timeout * 3}, hub, log)
	go tasks.RunCleanup(rootCtx, 5*time.Minute, time.Hour)

	sessions := session.NewManager(session.Deps{
		Narrative:       generation.NewNarrativeGenerator(aiClient, cfg.AI, log),
		Options:         generation.NewOptionGenerator(aiClient, cfg.AI, log),
		Narrator:        generation.NewNarrator(speech, narrationStore, cfg.AI, log),
		Imaginer:        generation.NewImaginer(images, cfg.AI, log),
		Commenter:       generation.NewCommentGenerator(aiClient, log),
		Stories:         stories,
		Events:          events,
		Notifier:        hub,
		CommentInterval: cfg.CommentInterval,
		Logger:          log,
	}, cfg.SessionIdleTTL)
	go sessions.RunJanitor(rootCtx, time.Minute)

	storyHandler := handler.NewStoryHandler(sessions, stories, narrationStore, tasks, events, log)

	// --- Rate Limiter ---
	rateLimitStore := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: redisClient,
		Rate:        time.Minute,
		Limit:       cfg.RateLimitPerMinute,
	})
	generationLimit := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			log.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Code:    models.ErrCodeTooManyRequests,
				Message: "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	router.GET("/ws", hub.Handler)

	storyHandler.RegisterRoutes(router, generationLimit)

	// Prometheus middleware после регистрации роутов
	p.Use(router)

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Синхронная генерация может идти дольше обычного запроса
		WriteTimeout: cfg.AI.Timeout*3 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Warn("Task manager did not finish in time", zap.Error(err))
	}
	sessions.CloseAll()
	stop()

	log.Info("Server exiting")
}

// setupRedis создает клиента Redis и ждет, пока он ответит на PING.
func setupRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	const maxRetries = 10
	retryDelay := 3 * time.Second
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			log.Info("Connected to Redis", zap.String("address", cfg.RedisAddr), zap.Int("attempt", attempt))
			return client, nil
		}
		log.Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}
