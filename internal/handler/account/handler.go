package account

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/service/account"
)

type Handler struct {
	service *account.Service
}

func NewHandler(service *account.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	users := r.Group("/users")
	{
		users.GET("", h.List)
		users.POST("", h.Create)
		users.POST("/:id/roles", h.AssignRole)
		users.DELETE("/:id/roles/:role", h.RemoveRole)
	}
}

func (h *Handler) List(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(users))
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(user))
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) AssignRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid account id"))
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	if err := h.service.AssignRole(c.Request.Context(), userID, req.Role); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) RemoveRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid account id"))
		return
	}

	if err := h.service.RemoveRole(c.Request.Context(), userID, c.Param("role")); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
