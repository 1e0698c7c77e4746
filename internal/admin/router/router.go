package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/monitorul/subjobs/internal/admin/handler"
)

// SetupRouter configures and returns the Gin router with all admin routes
func SetupRouter(deps *handler.Dependencies, apiKey string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint, outside the API key guard
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "subscription-jobs-admin",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	admin := r.Group("/api/v1/admin")
	admin.Use(APIKeyMiddleware(apiKey))
	{
		jobs := admin.Group("/jobs")
		{
			// GET /api/v1/admin/jobs - All job statuses
			jobs.GET("", jobHandler.GetAllJobStatuses)

			// GET /api/v1/admin/jobs/:name - One job's status
			jobs.GET("/:name", jobHandler.GetJobStatus)

			// POST /api/v1/admin/jobs/:name/run - Run a job now
			jobs.POST("/:name/run", jobHandler.RunJob)

			// POST /api/v1/admin/jobs/:name/enable - Enable a job
			jobs.POST("/:name/enable", jobHandler.EnableJob)

			// POST /api/v1/admin/jobs/:name/disable - Disable a job
			jobs.POST("/:name/disable", jobHandler.DisableJob)
		}

		logs := admin.Group("/logs")
		{
			// GET /api/v1/admin/logs - List run logs with filters
			logs.GET("", jobHandler.GetJobLogs)

			// DELETE /api/v1/admin/logs - Purge run logs
			logs.DELETE("", jobHandler.ClearJobLogs)
		}
	}

	return r
}
