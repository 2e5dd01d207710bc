package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/roomsync"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: empty", domain.ErrValidation), http.StatusBadRequest, CodeValidation},
		{"no session", domain.ErrNoSession, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"not found", fmt.Errorf("message x: %w", domain.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"not live", domain.ErrNotLive, http.StatusConflict, CodeNotLive},
		{"broadcast", fmt.Errorf("%w: bus closed", roomsync.ErrBroadcastFailed), http.StatusAccepted, CodeBroadcastFailed},
		{"publish", fmt.Errorf("%w: %w", domain.ErrPublishFailed, domain.ErrStoreUnavailable), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"room", fmt.Errorf("%w: %w", domain.ErrRoomUnavailable, domain.ErrSubscriptionFailed), http.StatusServiceUnavailable, CodeRoomUnavailable},
		{"rate limited", echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), http.StatusTooManyRequests, CodeRateLimited},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestNewErrorResponseHidesInternalErrors(t *testing.T) {
	status, body := NewErrorResponse(errors.New("dial tcp 10.0.0.1: refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), body.Message)

	status, body = NewErrorResponse(echo.NewHTTPError(http.StatusTooManyRequests, "slow down"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "slow down", body.Message)
}
