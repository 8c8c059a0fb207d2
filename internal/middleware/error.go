package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/praxisboard/board-api/internal/handler"
)

// ErrorHandler turns deferred gin errors into the failure envelope. Handlers
// that already wrote a response are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		status := http.StatusInternalServerError
		if err, ok := lastErr.Err.(interface{ StatusCode() int }); ok {
			status = err.StatusCode()
		}

		c.JSON(status, handler.NewErrorResponse(lastErr.Error()))
	}
}
