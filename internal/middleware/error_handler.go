package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/pkg/logger"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler recovers panics and routes handler errors to the error
// handler so they are classified and counted like any other failure.
// handler may be nil.
func ErrorHandler(handler *resilience.ErrorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", r)
				}
				logger.Error("Panic recovered", err, map[string]interface{}{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})
				report(handler, c, err, models.SeverityCritical)

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "Internal server error",
					Message: "An unexpected error occurred",
					Code:    "INTERNAL_ERROR",
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= http.StatusInternalServerError {
				report(handler, c, appErr, "")
			}
			if !c.Writer.Written() {
				c.JSON(appErr.StatusCode, ErrorResponse{
					Error:   appErr.Message,
					Code:    appErr.Code,
					Details: appErr.Details,
				})
			}
			return
		}

		logger.Error("Request error", err, map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		report(handler, c, err, "")

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   err.Error(),
				Message: "Request failed",
			})
		}
	}
}

func report(handler *resilience.ErrorHandler, c *gin.Context, err error, severity models.Severity) {
	if handler == nil {
		return
	}
	handler.HandleError(err, models.ErrorContext{
		Component: "api",
		Action:    c.Request.Method + " " + c.FullPath(),
		UserID:    GetUserID(c),
		Metadata: map[string]interface{}{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		},
	}, resilience.HandleOptions{Severity: severity})
}

// AppError carries an HTTP status and a stable error code
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "Internal server error",
		Err:        err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

func NewTooManyRequestsError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Code:       "TOO_MANY_REQUESTS",
		Message:    message,
	}
}

// HandleAppError writes err as the response and aborts the chain
func HandleAppError(c *gin.Context, err *AppError) {
	logger.Warn(err.Message, map[string]interface{}{
		"code":   err.Code,
		"status": err.StatusCode,
		"path":   c.Request.URL.Path,
	})

	c.AbortWithStatusJSON(err.StatusCode, ErrorResponse{
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	})
}
