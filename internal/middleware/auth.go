package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/pkg/auth"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	roles      repository.RoleRepository
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, roles repository.RoleRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		roles:      roles,
	}
}

// Authenticate verifies the session token and puts the account identity in
// the request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.jwtManager.ValidateToken(parts[1], auth.AccessToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID.String())
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// RequireAdmin allows only accounts holding at least one admin role row.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := UserID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid account id"))
			c.Abort()
			return
		}

		roles, err := m.roles.ListForUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to check role"))
			c.Abort()
			return
		}

		for _, r := range roles {
			if r.Role == model.RoleAdmin {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, handler.NewErrorResponse("admin role required"))
		c.Abort()
	}
}

// UserID reads the authenticated account id set by Authenticate.
func UserID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.GetString(ContextUserID))
}
