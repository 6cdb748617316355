package router

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bulksend/internal/api/handler"
)

const healthTimeout = 3 * time.Second

// Options tune routes that are not handler dependencies.
type Options struct {
	ServiceName  string
	SSEHeartbeat time.Duration
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps, opts.ServiceName))

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics))
	}

	jobHandler := handler.NewJobHandler(deps)
	sessionHandler := handler.NewSessionHandler(deps)
	eventHandler := handler.NewEventHandler(deps, opts.SSEHeartbeat)

	// Browser form endpoint
	r.POST("/send", jobHandler.SendJob)

	if deps.WebSocket != nil {
		r.GET("/ws", gin.WrapH(deps.WebSocket))
	}
	r.GET("/events", eventHandler.Stream)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a bulk send
			jobs.POST("", jobHandler.SendJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		sess := v1.Group("/session")
		{
			sess.GET("", sessionHandler.GetSession)
			sess.POST("/logout", sessionHandler.Logout)
		}
	}

	if deps.UIDir != "" {
		r.StaticFile("/", filepath.Join(deps.UIDir, "index.html"))
		r.Static("/static", deps.UIDir)
	}

	return r
}

func healthHandler(deps *handler.Dependencies, service string) gin.HandlerFunc {
	if service == "" {
		service = "bulksend"
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}
		for name, check := range deps.HealthChecks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		body := gin.H{
			"status":  "healthy",
			"service": service,
			"checks":  checks,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		if deps.Session != nil {
			body["session"] = deps.Session.Info().State
		}
		c.JSON(status, body)
	}
}
