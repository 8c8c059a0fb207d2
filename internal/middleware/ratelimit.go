package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/praxisboard/board-api/internal/handler"
	"github.com/praxisboard/board-api/pkg/metrics"
)

// IntakeLimiter applies a per-caller sliding window to the intake endpoint.
// State is process-local; under horizontal scaling the window is approximate
// per instance, not globally exact.
type IntakeLimiter struct {
	sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	metrics  *metrics.Metrics
}

func NewIntakeLimiter(limit int, window time.Duration, m *metrics.Metrics) *IntakeLimiter {
	return &IntakeLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		metrics:  m,
	}
}

// CallerIdentity derives the rate-limit bucket from forwarded-address
// headers; callers with neither fall into a shared "unknown" bucket.
func CallerIdentity(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		// First hop is the originating client.
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return real
	}
	return "unknown"
}

func (rl *IntakeLimiter) cleanup() {
	rl.Lock()
	defer rl.Unlock()

	now := time.Now()
	for id, times := range rl.requests {
		var valid []time.Time
		for _, t := range times {
			if now.Sub(t) <= rl.window {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(rl.requests, id)
		} else {
			rl.requests[id] = valid
		}
	}
}

func (rl *IntakeLimiter) RateLimit() gin.HandlerFunc {
	go func() {
		for {
			time.Sleep(rl.window)
			rl.cleanup()
		}
	}()

	return func(c *gin.Context) {
		identity := CallerIdentity(c)

		rl.Lock()
		now := time.Now()

		var valid []time.Time
		for _, t := range rl.requests[identity] {
			if now.Sub(t) <= rl.window {
				valid = append(valid, t)
			}
		}

		if len(valid) >= rl.limit {
			rl.Unlock()
			if rl.metrics != nil {
				rl.metrics.IntakeRateLimited.Inc()
			}
			c.JSON(http.StatusTooManyRequests, handler.NewErrorResponse("rate limit exceeded"))
			c.Abort()
			return
		}

		rl.requests[identity] = append(valid, now)
		rl.Unlock()

		c.Next()
	}
}
