package errors

import (
	"context"
	"fmt"
	"net/http"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	userIDKey    contextKey = "user_id"
)

// NotFound reports a missing resource. userMessage is the translated text
// returned to API callers.
func NotFound(resource, identifier, userMessage string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(userMessage)
}

// Validation reports rejected input for a single field.
func Validation(field, userMessage string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("invalid %s", field)).
		WithContext("field", field).
		WithUserMessage(userMessage)
}

// Upstream reports a failed call to an external API. statusCode is 0 when
// no response was received.
func Upstream(service, endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeGraphAPI, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint)
	if statusCode > 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	appErr.Retryable = statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408
	return appErr
}

// Storage reports a failed store operation.
func Storage(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// RequestTooLarge reports a request body over limit bytes.
func RequestTooLarge(limit int64, userMessage string) *AppError {
	return New(ErrCodeRequestTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit)).
		WithContext("limit_bytes", limit).
		WithUserMessage(userMessage)
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration)
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// Context helpers

// ContextWithRequestID stores the request id for later error enrichment.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithUserID stores the authenticated user id.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})

	if requestID := ctx.Value(requestIDKey); requestID != nil {
		errorCtx["request_id"] = requestID
	}
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		errorCtx["trace_id"] = traceID
	}
	if userID := ctx.Value(userIDKey); userID != nil {
		errorCtx["user_id"] = userID
	}

	return errorCtx
}

// WithContextFromRequest adds request context to an error
func WithContextFromRequest(err *AppError, ctx context.Context) *AppError {
	if err == nil || ctx == nil {
		return err
	}

	for k, v := range FromContext(ctx) {
		err = err.WithContext(k, v)
	}

	return err
}

// HTTP helpers

// HTTPStatusCode maps error kinds to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	}

	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the JSON body every API endpoint answers with.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToEnvelope converts an error to the failure envelope.
func ToEnvelope(err error) Envelope {
	return Envelope{Success: false, Message: GetUserMessage(err)}
}
