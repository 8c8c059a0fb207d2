package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// Health answers liveness and readiness probes.
type Health struct {
	db *sqlx.DB
}

func NewHealth(db *sqlx.DB) *Health {
	return &Health{db: db}
}

func (h *Health) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": "healthy"}))
}

func (h *Health) ReadinessCheck(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse("database unavailable"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"status": "ready"}))
}
