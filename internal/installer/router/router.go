package router

import (
	"github.com/cuongbtq/inference-worker/internal/installer/handler"
	"github.com/cuongbtq/inference-worker/shared/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger, "/health"))
	r.Use(middleware.CORS())

	installHandler := handler.NewInstallHandler(deps)

	r.GET("/health", installHandler.Health)

	models := r.Group("/models")
	{
		// POST /models/install - Queue a model install
		models.POST("/install", installHandler.Install)

		// GET /models/install - List install requests
		models.GET("/install", installHandler.ListInstalls)

		// GET /models/install/:request_id - Get install status
		models.GET("/install/:request_id", installHandler.GetInstall)
	}

	return r
}
