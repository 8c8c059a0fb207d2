package intake

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/service/intake"
	apperrors "github.com/praxisboard/board-api/pkg/errors"
	"github.com/praxisboard/board-api/pkg/metrics"
)

// Handler exposes the out-of-band create endpoint for trusted automations.
type Handler struct {
	service *intake.Service
	token   string
	metrics *metrics.Metrics
}

func NewHandler(service *intake.Service, token string, m *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		token:   token,
		metrics: m,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, limiter gin.HandlerFunc) {
	r.POST("/create-patient", limiter, h.CreatePatient)
	// Preflight is answered by the CORS middleware before it reaches here.
	r.OPTIONS("/create-patient", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func (h *Handler) CreatePatient(c *gin.Context) {
	if !h.authorized(c) {
		h.count("unauthorized")
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid or missing bearer token"))
		return
	}

	var req intake.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.count("invalid")
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	result, err := h.service.CreatePatient(c.Request.Context(), &req)
	if err != nil {
		if apperrors.StatusOf(err) >= http.StatusInternalServerError {
			h.count("error")
		} else {
			h.count("invalid")
		}
		handler.RespondError(c, err)
		return
	}

	h.count("created")
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) authorized(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.token)) == 1
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.IntakeRequests.WithLabelValues(outcome).Inc()
	}
}
