package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scorecast/scorecast/internal/v1/assets"
	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/cache"
	"github.com/scorecast/scorecast/internal/v1/config"
	"github.com/scorecast/scorecast/internal/v1/handlers"
	"github.com/scorecast/scorecast/internal/v1/health"
	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/middleware"
	"github.com/scorecast/scorecast/internal/v1/ratelimit"
	"github.com/scorecast/scorecast/internal/v1/store"
	"github.com/scorecast/scorecast/internal/v1/tracing"
	"github.com/scorecast/scorecast/internal/v1/transport"
	"github.com/scorecast/scorecast/internal/v1/types"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	ctx := context.Background()

	// --- Tracing (Optional) ---
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "scorecast", cfg)
		if err != nil {
			slog.Error("Failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error shutting down tracer provider", "error", err)
			}
		}()
	}

	// --- Token Validator ---
	skipAuth := cfg.SkipAuth
	if !skipAuth {
		// FALLBACK: If in dev mode and credentials missing, auto-skip
		if cfg.DevelopmentMode && (cfg.Auth0Domain == "" || cfg.Auth0Audience == "") {
			slog.Warn("⚠️  Development Mode: Auth0 credentials missing. Auto-enabling SKIP_AUTH.")
			skipAuth = true
		} else if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			slog.Error("AUTH0_DOMAIN and AUTH0_AUDIENCE must be set in environment when SKIP_AUTH=false")
			os.Exit(1)
		}
	}

	var validator types.TokenValidator
	if !skipAuth {
		v, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			slog.Error("Failed to create auth validator", "error", err)
			os.Exit(1)
		}
		slog.Info("✅ Auth0 validator initialized", "domain", cfg.Auth0Domain, "audience", cfg.Auth0Audience)
		validator = v
	} else {
		slog.Warn("⚠️ Authentication DISABLED for development - DO NOT USE IN PRODUCTION")
		validator = &auth.MockValidator{}
	}

	// --- Store ---
	var st store.Store
	if cfg.DevStore == "memory" {
		slog.Warn("⚠️ Using in-memory store - state is lost on restart")
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("✅ Postgres store initialized, migrations applied")
	}

	// Seed the catalog from the ChordPro sources on disk.
	if imported, err := store.ImportSongs(ctx, st, cfg.SongDataDir); err != nil {
		slog.Error("Song catalog import failed", "error", err)
	} else if imported > 0 {
		slog.Info("Song catalog imported", "songs", imported)
	}

	// --- Redis Cache (Optional) ---
	var cacheService *cache.Service
	if cfg.RedisEnabled {
		cacheService, err = cache.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			cacheService = nil
		} else {
			slog.Info("✅ Redis cache initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Rate Limiter ---
	// Backed by Redis when available so limits hold across instances.
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, cacheService.Client())
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Assets + Hub + Handlers ---
	resolver, err := assets.NewResolver(cfg.SongDataDir, cfg.ETagBits)
	if err != nil {
		slog.Error("Failed to create asset resolver", "error", err)
		os.Exit(1)
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	hub := transport.NewHub(validator, rateLimiter, transport.OptionsFromConfig(cfg, allowedOrigins))

	api := handlers.New(st, hub, cacheService, resolver)

	// --- Router ---
	router := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.HeaderXCorrelationID)
	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("scorecast"))

	api.Register(router, validator, rateLimiter)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(st, cacheService)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// WebSocket endpoint. A distinct WEBSOCKET_PORT gets its own listener;
	// otherwise /ws shares the API server.
	servers := []*http.Server{}
	if cfg.WebSocketPort != "" && cfg.WebSocketPort != cfg.Port {
		wsRouter := gin.New()
		wsRouter.Use(gin.Recovery())
		wsRouter.GET("/ws", hub.ServeWS)
		servers = append(servers, &http.Server{
			Addr:    ":" + cfg.WebSocketPort,
			Handler: wsRouter,
		})
	} else {
		router.GET("/ws", hub.ServeWS)
	}

	servers = append(servers, &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	})

	// --- Graceful Shutdown ---
	// Start the servers in goroutines so they don't block.
	for _, srv := range servers {
		srv := srv
		go func() {
			slog.Info("Server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Failed to run server", "addr", srv.Addr, "error", err)
				syscall.Kill(os.Getpid(), syscall.SIGTERM)
			}
		}()
	}

	// Wait for an interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context gives in-flight requests 30 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all active rooms and WebSocket connections gracefully
	if err := hub.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown:", "addr", srv.Addr, "error", err)
		}
	}

	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	st.Close()
	slog.Info("Server exiting")
}
