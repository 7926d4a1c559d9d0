package router

import (
	"github.com/gin-gonic/gin"

	"medbill/internal/handler"
	"medbill/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	convertH *handler.ConvertHandler,
	debugH *handler.DebugHandler,
	healthH *handler.HealthHandler,
	corsOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))

	// Health check
	r.GET("/healthz", healthH.Liveness)

	v1 := r.Group("/api/v1")

	// Conversion pipeline
	v1.POST("/convert", convertH.Convert)
	v1.POST("/convert/export", convertH.Export)

	// Stage-isolated debug entry points
	debug := v1.Group("/debug")
	debug.POST("/parse", debugH.Parse)
	debug.POST("/extract", debugH.Extract)
	debug.POST("/structure", debugH.Structure)
	debug.GET("/artifacts/*key", debugH.Artifact)

	return r
}
