// Package apierr writes error responses in one shape:
//
//	{"error": {"code": "NOT_FOUND", "message": "Student not found"}}
//
// Validation failures add a "fields" object keyed by request field name.
package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/logging"
)

const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
)

type body struct {
	Error detail `json:"error"`
}

type detail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Write aborts the chain and writes the error body with status.
func Write(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, body{Error: detail{Code: code, Message: message}})
}

// Validation is a 400 for malformed or missing input.
func Validation(c *gin.Context, message string) {
	Write(c, http.StatusBadRequest, CodeValidationError, message)
}

// ValidationFields is a 400 listing the offending fields.
func ValidationFields(c *gin.Context, message string, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, body{Error: detail{
		Code:    CodeValidationError,
		Message: message,
		Fields:  fields,
	}})
}

// Unauthorized is a 401 for bad credentials or a missing, expired or invalid token.
func Unauthorized(c *gin.Context, message string) {
	Write(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden is a 403 for a role mismatch.
func Forbidden(c *gin.Context, message string) {
	Write(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Write(c, http.StatusNotFound, CodeNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Write(c, http.StatusConflict, CodeConflict, message)
}

// RateLimited is a 429.
func RateLimited(c *gin.Context, message string) {
	Write(c, http.StatusTooManyRequests, CodeRateLimited, message)
}

// Internal logs err with the request context and answers with a generic 500.
// The error text never reaches the client.
func Internal(c *gin.Context, err error, message string) {
	logging.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.GetString(logging.RequestIDKey)).
		Msg(message)
	_ = c.Error(err)
	Write(c, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}
