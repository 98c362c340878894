package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridesvc/internal/handler"
	"ridesvc/internal/middleware"
	"ridesvc/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler      *handler.RideHandler
	IdempotencyStore redis.IdempotencyStoreInterface
	NewRelicApp      *newrelic.Application
	Logger           *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.OrderRide)
			rides.GET("", deps.RideHandler.ListRides)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.PUT("/:id", deps.RideHandler.UpdateRide)
			rides.DELETE("/:id", deps.RideHandler.DeleteRide)
			rides.PUT("/:id/finish", deps.RideHandler.FinishRide)
			rides.PUT("/:id/cancel", deps.RideHandler.CancelRide)
			rides.PUT("/:id/:driverRating", deps.RideHandler.RateDriver)
		}
	}

	return router
}
