package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryGone          ErrorCategory = "gone"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
)

// categoryCodes are the short codes used in log lines and Error().
var categoryCodes = map[ErrorCategory]string{
	CategoryValidation:    "VALIDATION_ERROR",
	CategoryNotFound:      "NOT_FOUND",
	CategoryConflict:      "CONFLICT",
	CategoryGone:          "GONE",
	CategoryRateLimit:     "RATE_LIMIT_EXCEEDED",
	CategoryInternal:      "INTERNAL_ERROR",
	CategoryConfiguration: "CONFIGURATION_ERROR",
}

// AppError wraps an errbuilder error with HTTP context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	code, ok := categoryCodes[e.Category]
	if !ok {
		code = "UNKNOWN_ERROR"
	}
	return fmt.Sprintf("[%s] %s", code, e.ErrBuilder.Msg)
}

// MarshalJSON renders the error body sent to API clients
func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code       string        `json:"code"`
		Message    string        `json:"message"`
		Category   ErrorCategory `json:"category"`
		HTTPStatus int           `json:"http_status"`
		Timestamp  time.Time     `json:"timestamp"`
		RequestID  string        `json:"request_id,omitempty"`
		StackTrace string        `json:"stack_trace,omitempty"`
	}{
		Code:       fmt.Sprint(e.ErrBuilder.ErrCode()),
		Message:    e.ErrBuilder.Msg,
		Category:   e.Category,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  e.Timestamp,
		RequestID:  e.RequestID,
		StackTrace: e.StackTrace,
	})
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// build finishes a coded builder. detailKey, when set, attaches detail under
// that key in the error details.
func build(b *errbuilder.ErrBuilder, msg string, cause error, detailKey string, detail error) *errbuilder.ErrBuilder {
	b = b.WithMsg(msg)
	if detailKey != "" && detail != nil {
		details := errbuilder.ErrorMap{}
		details.Set(detailKey, detail)
		b = b.WithDetails(errbuilder.NewErrDetails(details))
	}
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b
}

// NewValidationError creates a validation error. The cause is attached under validation_details.
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument), message, cause, "validation_details", cause),
		CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(resource string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeNotFound), resource+" not found", cause, "resource", errors.New(resource)),
		CategoryNotFound, http.StatusNotFound)
}

// NewConflictError reports a request that does not fit the resource's current state
func NewConflictError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition), message, cause, "", nil),
		CategoryConflict, http.StatusConflict)
}

// NewGoneError reports a resource that existed but is no longer available
func NewGoneError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition), message, cause, "", nil),
		CategoryGone, http.StatusGone)
}

func NewRateLimitError(retryAfter string) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeResourceExhausted), "Rate limit exceeded", nil, "retry_after", errors.New(retryAfter)),
		CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError hides message from clients behind a generic one; it is
// kept in the details for logs. Debug and test builds capture a stack.
func NewInternalError(message string, cause error) *AppError {
	appErr := NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInternal), "Internal server error", cause, "internal_details", errors.New(message)),
		CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

// NewConfigurationError reports invalid startup configuration.
func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition), "Configuration error", cause, "config_details", errors.New(message)),
		CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that renders the last error attached to the context
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into structured error responses. A contract
// violation raised while scoring a request is reported as a validation error.
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		var appErr *AppError
		if cv, ok := recovered.(*ContractViolation); ok {
			appErr = NewValidationError("Request violates scoring contract", cv)
		} else {
			appErr = NewInternalError(
				fmt.Sprintf("Panic recovered: %v", recovered),
				fmt.Errorf("%v", recovered),
			)
			appErr.StackTrace = captureStackTrace()
		}

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var cv *ContractViolation
	if errors.As(err, &cv) {
		return NewValidationError(cv.Msg, cv)
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	errorMsg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryNotFound, CategoryConflict, CategoryGone, CategoryRateLimit:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(errorMsg, "details", details.Errors)
		} else {
			logEntry.Warn(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// SafeClose closes a resource and logs any error
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
