package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"community-campaigns/internal/auth"
	"community-campaigns/internal/blockchain"
	"community-campaigns/internal/config"
	"community-campaigns/internal/database"
	"community-campaigns/internal/handlers"
	"community-campaigns/internal/jobs"
	"community-campaigns/internal/middleware"
	"community-campaigns/internal/repository"
	"community-campaigns/internal/services"
	"community-campaigns/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret, cfg.App.TokenExpiration)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(database.GetDB())
	userRepo := repository.NewUserRepository(database.GetDB())

	// Ledger registry; missing secrets surface when a registration runs
	registry := blockchain.NewCampaignRegistry(cfg.LedgerRegistryConfig())
	if err := registry.Config().Validate(); err != nil {
		logger.Warn().
			Err(err).
			Msg("ledger registry is not fully configured; campaign registrations will fail")
	}

	// Registration pipeline
	processor := services.NewRegistrationProcessor(registry, campaignRepo, cfg.Worker.TaskTimeout)
	taskQueue := services.NewTaskQueue(cfg, processor.Process)

	worker, err := services.NewWorker(cfg)
	if err != nil {
		logger.Fatalf("Failed to create worker: %v", err)
	}
	if worker != nil && taskQueue.Durable() {
		worker.SetProcessor(processor.Process)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start worker: %v", err)
		}
	}

	if local, ok := taskQueue.(*services.LocalQueue); ok {
		go drainFailures(local)
	}

	// Initialize services
	userService := services.NewUserService(userRepo)
	campaignService := services.NewCampaignService(campaignRepo, userService, taskQueue)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	userHandler := handlers.NewUserHandler(userService)
	ledgerHandler := handlers.NewLedgerHandler(registry)

	// Background jobs
	backlogMonitor := jobs.NewOnchainBacklogMonitor(campaignRepo, cfg.Jobs.BacklogMonitorInterval)
	go backlogMonitor.Start()

	joinLimiter := middleware.NewRateLimiter(cfg.Server.JoinRateLimit, cfg.Server.JoinRateBurst, func(c *gin.Context) string {
		if userID, ok := auth.GetUserID(c); ok {
			return "user:" + strconv.FormatUint(uint64(userID), 10)
		}
		return "ip:" + c.ClientIP()
	})

	// Set up Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.Server.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public campaign routes
	router.GET("/api/campaigns", campaignHandler.ListCampaigns)
	router.GET("/api/campaigns/:id", campaignHandler.GetCampaign)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.GET("/user/profile", userHandler.GetProfile)

		api.POST("/campaigns", campaignHandler.CreateCampaign)
		api.POST("/campaigns/:id/join", joinLimiter.Middleware(), campaignHandler.JoinCampaign)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.AdminMiddleware())
	{
		admin.POST("/campaigns/:id/approve", campaignHandler.ApproveCampaign)
		admin.GET("/ledger/diagnostics", ledgerHandler.Diagnostics)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	backlogMonitor.Stop()
	joinLimiter.Stop()
	if worker != nil {
		worker.Stop()
	}
	// Waits for in-flight local registrations
	if err := taskQueue.Close(); err != nil {
		logger.Errorf("Failed to close task queue: %v", err)
	}

	logger.Infof("Server exited")
}

// drainFailures keeps the local queue's failure channel moving. Each
// failure was already logged by the processor; this records the task's age.
func drainFailures(queue *services.LocalQueue) {
	for failure := range queue.Failures() {
		logger.Warn().
			Str("campaign_id", failure.Task.CampaignID.String()).
			Str("error_kind", blockchain.ErrorKind(failure.Err)).
			Dur("queued_for", time.Since(failure.Task.QueuedAt)).
			Msg("campaign left without on-chain record")
	}
}
