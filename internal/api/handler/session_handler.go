package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bulksend/internal/api/dto"
	"github.com/cuongbtq/bulksend/internal/domain"
)

// GetSession handles GET /api/v1/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSessionDTO(h.session.Info()))
}

// Logout handles POST /api/v1/session/logout
// Unlinks the device; a new QR code follows on the event streams
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		if errors.Is(err, domain.ErrSessionNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": "WhatsApp session is not linked."})
			return
		}
		h.logger.Error("Logout failed", slog.Any("error", err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionDTO(h.session.Info()))
}
