package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/api"
	"github.com/jimmy058910/replitballgame-sub015/internal/api/handlers"
	"github.com/jimmy058910/replitballgame-sub015/internal/api/middleware"
	"github.com/jimmy058910/replitballgame-sub015/internal/events"
	"github.com/jimmy058910/replitballgame-sub015/internal/season"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
	"github.com/jimmy058910/replitballgame-sub015/internal/sim"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/internal/tournament"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
	"github.com/jimmy058910/replitballgame-sub015/pkg/database"
	"github.com/jimmy058910/replitballgame-sub015/pkg/logger"
)

// Exit codes: 0 clean, 1 bad config, 2 database unreachable, 3 panic while
// shutting down.
func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Errorf("Failed to load config: %v", err)
		return 1
	}

	// Setup logging
	log := logger.InitLogger("", cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment(), cfg.MaxConcurrentMatches)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return 2
	}
	defer db.Close()

	// Connect to Redis. The cache is an edge concern: when it is down the
	// API serves straight from the store, so startup continues on a warning.
	redisClient, err := services.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Errorf("Failed to parse Redis URL: %v", err)
		return 1
	}
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warnf("Redis unreachable, serving without cache: %v", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	st := store.New(db.DB, log, cfg.StoreOpTimeout)
	bus := events.NewBus()
	cacheService := services.NewCacheService(redisClient, log)

	webSocketHub := services.NewWebSocketHub(log)
	go webSocketHub.Run()

	relay := services.NewEventRelay(bus, webSocketHub, cacheService, log)
	go relay.Run(ctx)

	runner := sim.NewRunner(st, bus, log, sim.RunnerConfig{
		MaxConcurrent: cfg.MaxConcurrentMatches,
		TickPeriod:    cfg.TickPeriod(),
		StallTimeout:  cfg.WorkerStallTimeout,
	})
	runner.Start(ctx)

	aiFill := services.NewAITeamService(services.NewPoolGenerator(st), cfg.AIFillBreakerMaxFail, log)
	cups := tournament.NewService(st, bus, log, cfg, aiFill)
	go cups.Run(ctx)

	coordinator := season.NewCoordinator(st, bus, log, cfg, runner, cups)
	if err := coordinator.Start(ctx); err != nil {
		log.Errorf("Failed to start season coordinator: %v", err)
		return 1
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.CorsOrigins))
	router.Use(middleware.TeamAuth(cfg.JWTSecret))

	// Health endpoints at root level
	healthHandler := handlers.NewHealthHandler(db, runner, webSocketHub, coordinator, aiFill)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, st, runner, cups, coordinator, cacheService, cfg, log)

	// Setup WebSocket endpoint at root level (not under /api/v1)
	wsHandler := handlers.NewWebSocketHandler(webSocketHub, log)
	router.GET("/ws", wsHandler.Handle)

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case err := <-serveErr:
		log.Errorf("Server failed: %v", err)
		code = 1
	case sig := <-quit:
		log.Infof("Received %s, shutting down...", sig)
	}

	if !shutdown(srv, coordinator, runner, cancel, log) {
		return 3
	}

	log.Info("Server exited")
	return code
}

// shutdown stops intake first, then drains: no new ticks or matches, let
// running workers checkpoint, then close the listener. Reports false if the
// sequence itself panicked.
func shutdown(srv *http.Server, coordinator *season.Coordinator, runner *sim.Runner, cancel context.CancelFunc, log *logrus.Logger) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic during shutdown: %v", r)
			clean = false
		}
	}()

	coordinator.Stop()
	cancel()
	runner.Drain(30 * time.Second)

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	return true
}
