package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldtrack/geofence-backend-go/internal/handler"
	"github.com/fieldtrack/geofence-backend-go/internal/middleware"
)

// SetupRouter wires the HTTP API and the realtime endpoints
func SetupRouter(staffHandler *handler.StaffHandler, wsHandler *handler.WSHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Geofence Backend API is running",
		})
	})

	// realtime endpoints
	r.GET("/ws/staff", wsHandler.StaffSocket)
	r.GET("/ws/supervisor", wsHandler.SupervisorSocket)

	// API routes
	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(300, time.Minute))
	{
		staff := api.Group("/staff")
		{
			staff.GET("", staffHandler.ListStaff)
			staff.GET("/:id", staffHandler.GetStaff)
			staff.PUT("/:id/geofence", staffHandler.SaveGeofence)
			staff.DELETE("/:id/geofence", staffHandler.DeleteGeofence)
		}
	}

	return r
}
