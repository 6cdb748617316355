package handler

import (
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bulksend/internal/progress"
)

const defaultSSEHeartbeat = 30 * time.Second

// EventHandler streams progress events as server-sent events
type EventHandler struct {
	logger    *slog.Logger
	events    Subscriber
	initial   func() []progress.Event
	heartbeat time.Duration
}

// NewEventHandler creates a new EventHandler instance
func NewEventHandler(deps *Dependencies, heartbeat time.Duration) *EventHandler {
	if heartbeat <= 0 {
		heartbeat = defaultSSEHeartbeat
	}
	h := &EventHandler{
		logger:    deps.Logger,
		events:    deps.Events,
		heartbeat: heartbeat,
	}
	if deps.Session != nil {
		h.initial = deps.Session.InitialEvents
	}
	return h
}

// Stream handles GET /events
func (h *EventHandler) Stream(c *gin.Context) {
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if h.initial != nil {
		for _, e := range h.initial() {
			c.SSEvent(e.Name, e.Data)
		}
	}
	c.Writer.Flush()

	h.logger.Debug("SSE observer connected", slog.String("ip", c.ClientIP()))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(e.Name, e.Data)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})

	h.logger.Debug("SSE observer disconnected", slog.String("ip", c.ClientIP()))
}
