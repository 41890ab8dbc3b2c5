package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateDispute  ErrorCode = "DUPLICATE_DISPUTE"
	ErrCodeInvalidSplit      ErrorCode = "INVALID_SPLIT"
	ErrCodePayoutFailed      ErrorCode = "PAYOUT_FAILED"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation, ErrCodeInvalidSplit:
		return http.StatusBadRequest
	case ErrCodeInvalidTransition, ErrCodeDuplicateDispute:
		return http.StatusConflict
	case ErrCodePayoutFailed:
		// Выплата будет повторена; клиенту отдаём 202, а не жёсткую ошибку.
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// Is проверяет код ошибки через errors.As.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsInvalidTransition(err error) bool { return Is(err, ErrCodeInvalidTransition) }
func IsUnauthorized(err error) bool      { return Is(err, ErrCodeForbidden) || Is(err, ErrCodeUnauthorized) }
func IsPayoutFailed(err error) bool      { return Is(err, ErrCodePayoutFailed) }
func IsNotFound(err error) bool          { return Is(err, ErrCodeNotFound) }

// InvalidTransition формирует ошибку недопустимого перехода статуса.
func InvalidTransition(entity, from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("недопустимый переход %s: %s -> %s", entity, from, to))
}
