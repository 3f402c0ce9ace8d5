package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxtransfer/booking/pkg/validation"
)

// SuccessResponse writes a 200 response with the standard envelope.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// CreatedResponse writes a 201 response with the standard envelope.
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse writes an error response with the given status code.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

// AppErrorResponse translates an error chain into an HTTP response.
// Validation errors include field-level detail; AppErrors use their own code;
// anything else becomes a 500.
func AppErrorResponse(c *gin.Context, err error) {
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation failed",
			"fields":  vErr.Errors,
		})
		return
	}

	appErr := AsAppError(err)
	ErrorResponse(c, appErr.Code, appErr.Message)
}
