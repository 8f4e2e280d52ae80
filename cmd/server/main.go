package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/greengoods/api/internal/auth"
	"github.com/greengoods/api/internal/backend"
	"github.com/greengoods/api/internal/cache"
	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/codec"
	"github.com/greengoods/api/internal/config"
	"github.com/greengoods/api/internal/connectivity"
	"github.com/greengoods/api/internal/eventbus"
	"github.com/greengoods/api/internal/handler"
	"github.com/greengoods/api/internal/middleware"
	"github.com/greengoods/api/internal/model"
	"github.com/greengoods/api/internal/queue"
	"github.com/greengoods/api/internal/resolver"
	"github.com/greengoods/api/internal/service"
	"github.com/greengoods/api/internal/store"
	ws "github.com/greengoods/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize event bus and WebSocket hub
	bus := eventbus.NewBus()
	hub := ws.NewHub()
	go hub.Run()
	bus.Subscribe(hub.HandleEvent)

	// Initialize external clients
	chainClient := client.NewChainClient(&cfg.Chain)
	relayClient := client.NewRelayClient(&cfg.Relay)
	indexerClient := client.NewIndexerClient(&cfg.Indexer)

	// Initialize R2 storage (optional - falls back to in-memory storage)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
			storage = client.NewMemStorage()
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using in-memory storage")
		storage = client.NewMemStorage()
	}

	attestationCodec := codec.NewAttestationCodec(storage, cfg.Chain.RegistryAddress)

	// Initialize queue internals
	jobStore := store.NewJobStore(redisClient, cfg.Queue.Retention)
	simCache := cache.NewSimCache(cfg.Queue.SimCacheTTL, cfg.Queue.SimCacheSize)
	conflicts := resolver.NewConflictResolver(indexerClient)

	backends := map[model.BackendKind]backend.SubmissionBackend{
		model.BackendWallet:       backend.NewWalletBackend(chainClient, attestationCodec),
		model.BackendSmartAccount: backend.NewSmartAccountBackend(relayClient, chainClient, attestationCodec),
		model.BackendAgent:        backend.NewAgentBackend(chainClient, attestationCodec, cfg.Agent.RelayerAddress),
	}

	scheduler := queue.NewAsynqScheduler(asynqClient)
	manager := queue.NewManager(jobStore, backends, conflicts, simCache, bus, scheduler, queue.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		Backoff: queue.BackoffPolicy{
			Base: cfg.Queue.BackoffBase,
			Max:  cfg.Queue.BackoffMax,
		},
		ConfirmAttempts:  cfg.Queue.ConfirmAttempts,
		ConfirmInterval:  cfg.Queue.ConfirmInterval,
		ConfirmRetention: cfg.Queue.ConfirmRetention,
	})

	if err := manager.Start(rootCtx); err != nil {
		log.Fatalf("Failed to start queue manager: %v", err)
	}

	// Connectivity monitor: regained connectivity and explicit sync
	// requests both trigger a full drain
	monitor := connectivity.NewMonitor(chainClient, cfg.Connectivity.ProbeInterval)
	monitor.Subscribe(func(s connectivity.Signal) {
		if s == connectivity.SignalOnline || s == connectivity.SignalSyncRequested {
			manager.DrainAll()
		}
	})
	go monitor.Start(rootCtx)

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services and handlers
	jobsService := service.NewJobsService(jobStore, manager, cfg.Queue.MaxRetries)

	jobsHandler := handler.NewJobsHandler(jobsService, validate)
	agentHandler := handler.NewAgentHandler(jobsService, validate)
	syncHandler := handler.NewSyncHandler(monitor)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB for inline media
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"online": monitor.Online(),
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"relay":   relayClient.IsConfigured(),
				"indexer": indexerClient.IsConfigured(),
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.EnqueueLimit(cfg.RateLimit.EnqueuePerMin), jobsHandler.Enqueue)
	jobs.Get("/", jobsHandler.List)
	jobs.Get("/:jobId", jobsHandler.Get)
	jobs.Post("/:jobId/cancel", jobsHandler.Cancel)

	api.Post("/sync", rateLimiter.SyncLimit(cfg.RateLimit.SyncPerMin), syncHandler.Sync)

	// Agent routes (conversational bridge, static service token)
	agent := app.Group("/agent", middleware.AgentAuthMiddleware(cfg.Agent.Token))
	agent.Post("/submit", agentHandler.Submit)
	agent.Get("/status/:address", agentHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:address", websocket.New(func(c *websocket.Conn) {
		address := strings.ToLower(c.Params("address"))
		hub.HandleConnection(c, address)
	}))

	// Start Asynq worker server for scheduled drains
	go startWorkerServer(cfg, manager)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		rootCancel()
		manager.Stop()
		bus.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, manager *queue.Manager) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				queue.QueueDrain: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDrain, queue.NewDrainHandler(manager))

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
