package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetLogger().Error("Unhandled panic", zap.Any("error", err), zap.String("path", c.FullPath()))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	GetLogger().Warn(message, zap.String("details", details), zap.Int("status", status))
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err using the AppError taxonomy. Internal details are not exposed.
func RespondError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := StatusForKind(kind)

	var appErr *AppError
	if !errors.As(err, &appErr) || kind == KindInternal {
		GetLogger().Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, ErrorResponse{Message: "Internal Server Error", Code: string(KindInternal)})
		return
	}

	GetLogger().Warn(appErr.Message, zap.String("kind", string(kind)), zap.String("code", appErr.Code), zap.Error(appErr.Err))
	code := appErr.Code
	if code == "" {
		code = string(kind)
	}
	resp := ErrorResponse{Message: appErr.Message, Code: code}
	if appErr.Err != nil && kind != KindUpstreamFailure {
		resp.Details = appErr.Err.Error()
	}
	c.JSON(status, resp)
}
