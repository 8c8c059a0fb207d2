package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/praxisboard/board-api/pkg/errors"
)

// Response is the envelope every endpoint answers with, success or failure.
type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Success: false,
		Error:   message,
	}
}

// RespondError maps an error to its HTTP status and writes the failure
// envelope.
func RespondError(c *gin.Context, err error) {
	c.JSON(apperrors.StatusOf(err), NewErrorResponse(apperrors.MessageOf(err)))
}
