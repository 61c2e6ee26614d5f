package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrConflict           = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrTimeout            = NewError("TIMEOUT", "operation timed out", http.StatusRequestTimeout)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	ErrChannelNotFound                = NewError("CHANNEL_NOT_FOUND", "channel not found", http.StatusNotFound)
	ErrRouterNotFound                 = NewError("ROUTER_NOT_FOUND", "router not found", http.StatusNotFound)
	ErrDestinationNotFound            = NewError("DESTINATION_NOT_FOUND", "destination not found", http.StatusNotFound)
	ErrMessageNotFound                = NewError("MESSAGE_NOT_FOUND", "message not found", http.StatusBadRequest)
	ErrInvalidChannelType             = NewError("INVALID_CHANNEL_TYPE", "invalid channel type", http.StatusBadRequest)
	ErrInvalidRouterType              = NewError("INVALID_ROUTER_TYPE", "invalid router type", http.StatusBadRequest)
	ErrInvalidRouterConfig            = NewError("INVALID_ROUTER_CONFIG", "invalid router config", http.StatusBadRequest)
	ErrInvalidRouterDestinationConfig = NewError("INVALID_ROUTER_DESTINATION_CONFIG", "invalid router destination config", http.StatusBadRequest)
	ErrMessageTooLong                 = NewError("MESSAGE_TOO_LONG", "message too long", http.StatusBadRequest)
	ErrAPIUsage                       = NewError("API_USAGE_ERROR", "api usage error", http.StatusBadRequest)
	ErrRoutingKey                     = NewError("ROUTING_KEY_ERROR", "invalid routing key", http.StatusInternalServerError)
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that errors.Is(err, ErrChannelNotFound) holds for any
// derived copy produced by WithCause or WithDetail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Description returns the human readable message, preferring the "message"
// detail over the generic kind message.
func (e *Error) Description() string {
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		return detailMsg
	}
	return e.Message
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

// WithMessage is shorthand for WithDetail("message", fmt.Sprintf(...)).
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return e.WithDetail("message", fmt.Sprintf(format, args...))
}

func IsNotFound(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status == http.StatusNotFound
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		// If it's not our error type, wrap it
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"status":      appErr.Status,
		"code":        appErr.Code,
		"description": appErr.Description(),
	}

	if len(appErr.Details) > 0 {
		details := make(map[string]interface{}, len(appErr.Details))
		for k, v := range appErr.Details {
			if k == "message" {
				continue
			}
			details[k] = v
		}
		if len(details) > 0 {
			response["result"] = details
		}
	}

	return response
}
