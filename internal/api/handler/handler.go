package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bulksend/internal/dispatch"
	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/progress"
	"github.com/cuongbtq/bulksend/internal/recipient"
	"github.com/cuongbtq/bulksend/internal/session"
	"github.com/cuongbtq/bulksend/internal/storage"
)

// Dispatcher is the job surface used by handlers.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.Request) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filter storage.JobFilter) ([]*domain.Job, error)
	Cancel(ctx context.Context, id string) (*domain.Job, error)
}

// Session is the WhatsApp session surface used by handlers.
type Session interface {
	Info() session.Info
	InitialEvents() []progress.Event
	Logout(ctx context.Context) error
}

// Subscriber hands out event streams.
type Subscriber interface {
	Subscribe() (<-chan progress.Event, func())
}

// HealthCheck checks one backing service.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Dispatcher Dispatcher
	Session    Session
	Resolver   *recipient.Resolver
	Events     Subscriber

	// WebSocket serves /ws; nil disables the route.
	WebSocket http.Handler
	// Metrics serves MetricsPath; nil disables the route.
	Metrics     http.Handler
	MetricsPath string

	HealthChecks   map[string]HealthCheck
	MaxUploadBytes int64
	UIDir          string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	dispatcher     Dispatcher
	resolver       *recipient.Resolver
	maxUploadBytes int64
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:         deps.Logger,
		dispatcher:     deps.Dispatcher,
		resolver:       deps.Resolver,
		maxUploadBytes: deps.MaxUploadBytes,
	}
}

// SessionHandler handles session status and logout
type SessionHandler struct {
	logger  *slog.Logger
	session Session
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(deps *Dependencies) *SessionHandler {
	return &SessionHandler{
		logger:  deps.Logger,
		session: deps.Session,
	}
}

// errorResponse maps domain errors to a status code and client message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNoValidNumbers):
		return http.StatusBadRequest, "No valid numbers found."
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest, "Message or media is required."
	case errors.Is(err, domain.ErrSessionNotReady):
		return http.StatusServiceUnavailable, "WhatsApp session is not ready."
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "Send queue is full, try again later."
	case errors.Is(err, domain.ErrDispatcherStopped):
		return http.StatusServiceUnavailable, "Service is shutting down."
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, domain.ErrJobFinished):
		return http.StatusConflict, "Job already finished"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

func (h *JobHandler) abortWithError(c *gin.Context, err error) {
	status, msg := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}
