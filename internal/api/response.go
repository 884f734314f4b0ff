package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/wikiops/internal/registry"
	"github.com/shaiso/wikiops/internal/scheduler"
	"github.com/shaiso/wikiops/internal/webhook"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRunInProgress      ErrorCode = "RUN_IN_PROGRESS"
	ErrCodeTooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeLockUnavailable    ErrorCode = "LOCK_UNAVAILABLE"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRequestTimeout     ErrorCode = "REQUEST_TIMEOUT"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Reason — машиночитаемая причина отказа webhook.
	Reason string `json:"reason,omitempty"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized отправляет ошибку 401.
func Unauthorized(w http.ResponseWriter, message, reason string) {
	JSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: ErrorDetail{
			Code:    ErrCodeUnauthorized,
			Message: message,
			Reason:  reason,
		},
	})
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// TooManyRequests отправляет ошибку 429.
func TooManyRequests(w http.ResponseWriter) {
	Error(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "too many requests")
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// ServiceUnavailable отправляет ошибку 503.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", "5")
	Error(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// HandleError преобразует ошибку планировщика или webhook в HTTP ответ.
// Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	var verr *webhook.VerificationError
	switch {
	case errors.As(err, &verr):
		Unauthorized(w, verr.Message(), string(verr.Reason))
	case errors.Is(err, registry.ErrJobNotFound):
		NotFound(w, "job not found")
	case errors.Is(err, scheduler.ErrRunInProgress):
		Error(w, http.StatusConflict, ErrCodeRunInProgress, scheduler.ErrRunInProgress.Error())
	case errors.Is(err, scheduler.ErrLockUnavailable):
		w.Header().Set("Retry-After", "5")
		Error(w, http.StatusServiceUnavailable, ErrCodeLockUnavailable, scheduler.ErrLockUnavailable.Error())
	case errors.Is(err, scheduler.ErrRequestTimeout):
		Error(w, http.StatusGatewayTimeout, ErrCodeRequestTimeout,
			"run is still in progress; check run history for the outcome")
	case errors.Is(err, scheduler.ErrShuttingDown):
		ServiceUnavailable(w, scheduler.ErrShuttingDown.Error())
	case errors.Is(err, webhook.ErrQueueFull), errors.Is(err, webhook.ErrQueueClosed),
		errors.Is(err, webhook.ErrBrokerUnavailable):
		ServiceUnavailable(w, "webhook queue unavailable, retry delivery")
	default:
		InternalError(w, logger, err)
	}
	return true
}
