package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/roomsync"
)

// Error codes shared by the HTTP API and websocket error frames.
const (
	CodeValidation       = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeNotLive          = "not_live"
	CodeStoreUnavailable = "store_unavailable"
	CodeRoomUnavailable  = "room_unavailable"
	CodeBroadcastFailed  = "broadcast_failed"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

// Classify maps an error to an HTTP status and an API error code.
func Classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	var he *echo.HTTPError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.As(err, &verrs):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrNotLive):
		return http.StatusConflict, CodeNotLive
	case errors.Is(err, roomsync.ErrBroadcastFailed):
		return http.StatusAccepted, CodeBroadcastFailed
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrPublishFailed):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	case errors.Is(err, domain.ErrRoomUnavailable), errors.Is(err, domain.ErrSubscriptionFailed):
		return http.StatusServiceUnavailable, CodeRoomUnavailable
	case errors.As(err, &he):
		switch he.Code {
		case http.StatusTooManyRequests:
			return he.Code, CodeRateLimited
		case http.StatusNotFound:
			return he.Code, CodeNotFound
		case http.StatusBadRequest, http.StatusUnsupportedMediaType:
			return he.Code, CodeValidation
		}
		return he.Code, http.StatusText(he.Code)
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// NewErrorResponse builds the response body for err.
func NewErrorResponse(err error) (int, *ErrorResponse) {
	status, code := Classify(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return status, &ErrorResponse{Code: code, Message: msg}
}
