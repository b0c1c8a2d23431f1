package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/config"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/models"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/routes"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/scheduler"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// dbInitialized tracks whether the databases have been successfully
// initialized. It is read by the /ready endpoint from request goroutines
// while the background init goroutine writes it.
var dbInitialized bool
var dbInitMutex sync.RWMutex

// jobScheduler is set by the background init goroutine once the databases
// are up and read again during shutdown.
var jobScheduler *scheduler.Scheduler
var jobSchedulerMu sync.Mutex

func setJobScheduler(s *scheduler.Scheduler) {
	jobSchedulerMu.Lock()
	jobScheduler = s
	jobSchedulerMu.Unlock()
}

func currentJobScheduler() *scheduler.Scheduler {
	jobSchedulerMu.Lock()
	defer jobSchedulerMu.Unlock()
	return jobScheduler
}

func main() {
	log.Println("==============================================")
	log.Println("  Equity Pipeline API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up. Databases are initialized in background.
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server IMMEDIATELY so the platform knows we're listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize databases and setup routes in background
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Seed default operator account
		if err := models.SeedDefaultOperator(config.DB,
			os.Getenv("OPERATOR_USERNAME"), os.Getenv("OPERATOR_PASSWORD")); err != nil {
			log.Printf("Warning: Could not seed operator: %v", err)
		}

		// Initialize global services
		initializeGlobalServices(cfg)

		// Mark databases as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// The pipeline drives batch runs for both the scheduler and the
		// manual trigger endpoint.
		pipeline := services.NewPipeline(cfg, db)
		routes.SetupRoutes(router, db, services.GlobalBarDB, cfg.JWTSecret, pipeline.Trigger)

		// Start background scheduler
		store := services.NewSnapshotStore(cfg.RunsDir)
		js := scheduler.NewScheduler(pipeline, services.GlobalBarDB, store)
		setJobScheduler(js)
		go js.Start()

		log.Println("Application fully initialized with databases")
	}()

	// Graceful shutdown
	gracefulShutdown(server)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateRunModels(db); err != nil {
		return err
	}
	if err := models.MigrateOperatorModels(db); err != nil {
		return err
	}
	return nil
}

// initializeGlobalServices initializes global service instances
func initializeGlobalServices(cfg *config.Config) {
	// The bar database is where every ingest lands; the API serves
	// signals straight from it.
	if err := services.InitBarDB(cfg.BarDBPath); err != nil {
		log.Printf("Warning: Failed to initialize bar database: %v", err)
	}

	// Initialize MongoDB run archive if configured
	if err := services.InitRunArchive(); err != nil {
		log.Printf("MongoDB not configured or failed to connect: %v", err)
	}

	// Start the run event feed hub
	services.GlobalRunFeed.Start()

	log.Println("Global services initialized")
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Equity Pipeline API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		// Check database connection
		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe - can be used for initial health check
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests in production
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop scheduler first so no new runs launch mid-shutdown
	if js := currentJobScheduler(); js != nil {
		js.Stop()
	}

	// Stop the run feed and the archive
	services.GlobalRunFeed.Stop()
	if services.GlobalRunArchive != nil {
		services.GlobalRunArchive.Close()
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close database connections
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}
	if services.GlobalBarDB != nil {
		services.GlobalBarDB.Close()
		log.Println("Bar database closed")
	}

	log.Println("Server shutdown completed")
}
