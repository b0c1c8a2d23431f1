package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/controllers"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/middleware"
	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/services"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, barDB *services.BarDB, jwtSecret string, trigger controllers.TriggerFunc) {
	// Initialize controllers
	authController := controllers.NewAuthController(db, jwtSecret)
	runController := controllers.NewRunController(db, trigger)
	signalController := controllers.NewSignalController(barDB)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
		}

		// Run inspection routes
		runs := api.Group("/runs")
		{
			runs.GET("", runController.GetRuns)
			runs.GET("/:run_id", runController.GetRun)
			runs.GET("/:run_id/shards/:index/log", runController.GetShardLog)

			// Triggering a run requires an operator token
			runs.POST("", middleware.JWTAuthMiddleware(jwtSecret), runController.TriggerRun)
		}

		// Signal routes
		signals := api.Group("/signals")
		{
			signals.GET("", signalController.GetLatestSignals)
		}
	}

	// Live run event feed
	router.GET("/ws/runs", func(c *gin.Context) {
		services.GlobalRunFeed.HandleWebSocket(c.Writer, c.Request)
	})
}
