package configuration

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/service/configuration"
)

type Handler struct {
	service *configuration.Service
}

func NewHandler(service *configuration.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/configuration", h.Get)
	r.PATCH("/configuration", h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	// nil data means "no configuration yet", which is a valid state.
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

func (h *Handler) Update(c *gin.Context) {
	var upd model.ConfigurationUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	cfg, err := h.service.Update(c.Request.Context(), &upd)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}
