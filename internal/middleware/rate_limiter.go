package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/praxisboard/board-api/internal/handler"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter is a process-wide token bucket guarding the interactive API.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
