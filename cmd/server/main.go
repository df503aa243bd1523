package main

import (
	"context"
	"fmt"
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
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/reelsaver/api/docs"
	"github.com/reelsaver/api/internal/auth"
	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/internal/config"
	"github.com/reelsaver/api/internal/handler"
	"github.com/reelsaver/api/internal/ledger"
	"github.com/reelsaver/api/internal/middleware"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/resolver"
	"github.com/reelsaver/api/internal/service"
	"github.com/reelsaver/api/internal/store"
	ws "github.com/reelsaver/api/internal/websocket"
	"github.com/reelsaver/api/internal/worker"
)

// @title          ReelSaver API
// @version        1.0
// @description    Bulk social media video downloads packaged as a single ZIP archive.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
// @securityDefinitions.apikey WorkerSecret
// @in             header
// @name           Authorization
// @description    Internal worker secret in the format **Bearer &lt;secret&gt;**
func main() {
	// Optional .env for local development
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}
	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s://%s", docs.SwaggerInfo.Schemes[0], docs.SwaggerInfo.Host)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Job store
	jobStore, err := store.New(cfg.Store.Backend, redisClient, store.Options{
		QueuedTimeout: cfg.Bulk.QueuedTimeout,
		Capacity:      cfg.Store.MemoryCapacity,
	})
	if err != nil {
		log.Fatalf("Failed to create job store: %v", err)
	}
	log.Printf("Info: job store backend %q", cfg.Store.Backend)

	credits, err := newLedger(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to create credit ledger: %v", err)
	}
	log.Printf("Info: credit ledger backend %q", cfg.Ledger.Backend)

	storage, localStorage, err := newStorage(cfg, publicURL)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	// Zitadel JWKS verifier (optional, falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Pipeline
	extractorClient := client.NewExtractorClient(&cfg.Extractor)
	mediaResolver := resolver.New(extractorClient)
	bulkWorker := worker.NewBulkWorker(jobStore, mediaResolver, client.NewMediaFetcher(nil), storage, hub, worker.Config{
		LeaseTTL:         cfg.Bulk.LeaseTTL,
		ItemTimeout:      cfg.Bulk.ItemTimeout,
		ExecutionTimeout: cfg.Bulk.ExecutionTimeout,
		LinkTTL:          cfg.Bulk.LinkTTL,
		FetchConcurrency: cfg.Bulk.FetchConcurrency,
		SpoolDir:         cfg.Bulk.SpoolDir,
	})

	var (
		dispatcher   service.JobDispatcher
		asynqClient  *asynq.Client
		inline       *service.InlineDispatcher
		workerServer *asynq.Server
	)
	switch cfg.Bulk.DispatchMode {
	case service.DispatchModeInline:
		inline = service.NewInlineDispatcher(bulkWorker, cfg.Bulk.ExecutionTimeout)
		dispatcher = inline
	case service.DispatchModeQueue:
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		dispatcher = service.NewQueueDispatcher(asynqClient, 24*time.Hour)
	default:
		log.Fatalf("Unknown bulk.dispatch_mode %q", cfg.Bulk.DispatchMode)
	}
	log.Printf("Info: dispatch mode %q", cfg.Bulk.DispatchMode)

	bulkService := service.NewBulkService(jobStore, credits, dispatcher, cfg.Bulk.MaxURLs)

	// Stale job reconciler
	reconciler := worker.NewReconciler(jobStore, hub)
	scheduler := cron.New(cron.WithSeconds())
	if _, err := reconciler.Schedule(scheduler, cfg.Bulk.ReconcileSchedule); err != nil {
		log.Fatalf("Invalid bulk.reconcile_schedule %q: %v", cfg.Bulk.ReconcileSchedule, err)
	}
	scheduler.Start()

	// Handlers
	bulkHandler := handler.NewBulkHandler(bulkService, mediaResolver, validate)
	workerHandler := handler.NewWorkerHandler(bulkWorker, jobStore, validate)

	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
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

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

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
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"store":    cfg.Store.Backend,
				"ledger":   cfg.Ledger.Backend,
				"storage":  cfg.Storage.Backend,
				"dispatch": cfg.Bulk.DispatchMode,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "" || cfg.Gateway.Enabled,
			},
		})
	})

	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Signed downloads for the local storage backend
	if localStorage != nil {
		app.Get("/files/*", handler.NewFilesHandler(localStorage).Download)
	}

	// Internal worker invocation
	app.Post("/internal/worker/bulk", middleware.WorkerAuth(cfg.Worker.Secret), workerHandler.Invoke)

	api := app.Group("/api", apiAuthMiddleware)

	api.Post("/bulk", rateLimiter.BulkLimit(cfg.RateLimit.BulkPerHour), bulkHandler.Create)
	jobs := api.Group("/bulk/jobs", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin))
	jobs.Get("/", bulkHandler.List)
	jobs.Get("/:jobId", bulkHandler.Status)
	api.Get("/credits", bulkHandler.Credits)
	api.Post("/resolve", rateLimiter.ResolveLimit(cfg.RateLimit.ResolvePerMin), bulkHandler.Resolve)

	// WebSocket routes
	app.Use("/ws", apiAuthMiddleware, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", func(c *fiber.Ctx) error {
		status, err := bulkService.GetStatus(c.Context(), c.Params("jobId"), middleware.GetUserID(c))
		if err != nil {
			return fiber.ErrNotFound
		}
		c.Locals("snapshot", status)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		var initial interface{}
		if status, ok := c.Locals("snapshot").(*model.BulkStatusResponse); ok {
			initial = status
		}
		hub.HandleConnection(c, c.Params("jobId"), initial)
	}))

	if asynqClient != nil {
		workerServer = newWorkerServer(cfg)
		mux := asynq.NewServeMux()
		mux.HandleFunc(service.TaskTypeBulk, bulkWorker.ProcessTask)
		go func() {
			if err := workerServer.Run(mux); err != nil {
				log.Printf("Asynq worker error: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		<-scheduler.Stop().Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if workerServer != nil {
			workerServer.Shutdown()
		}
		if inline != nil {
			inline.Wait()
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newLedger(cfg *config.Config, redisClient redis.UniversalClient) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case ledger.BackendRedis:
		return ledger.NewRedisLedger(redisClient), nil
	case ledger.BackendPostgres:
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for the postgres ledger")
		}
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get sql.DB: %w", err)
			}
			if err := ledger.Migrate(sqlDB); err != nil {
				return nil, err
			}
		}
		return ledger.NewPostgresLedger(db), nil
	case ledger.BackendMemory:
		log.Println("Warning: in-memory credit ledger, balances are lost on restart")
		return ledger.NewMemoryLedger(), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

// newStorage returns the configured StorageClient, plus the local backend
// when it is the one in use so /files can serve it.
func newStorage(cfg *config.Config, publicURL string) (client.StorageClient, *client.LocalStorage, error) {
	switch cfg.Storage.Backend {
	case "r2":
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			return nil, nil, err
		}
		return r2Client, nil, nil
	case "local":
		local, err := client.NewLocalStorage(&cfg.Storage, publicURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Bulk.WorkerConcurrency,
			Queues: map[string]int{
				service.QueueBulk: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)
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
