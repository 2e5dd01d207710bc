package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
	withSession := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Request().Header.Get("X-Participant"); id != "" {
				c.Set(SessionContextKey, &domain.Session{ParticipantID: id})
			}
			return next(c)
		}
	}
	e.POST("/", handler, withSession, RateLimiter(0.001, 3))

	do := func(remote, participant string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		if participant != "" {
			req.Header.Set("X-Participant", participant)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("allows requests within the burst", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("192.0.2.1:1234", ""))
	})

	t.Run("blocks requests exceeding the burst", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, do("192.0.2.2:1234", ""), "request %d should be allowed", i+1)
		}
		assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.2:1234", ""))
	})

	t.Run("participants are limited separately from their address", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, do("192.0.2.3:1234", "alice"))
		}
		assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.3:1234", "alice"))
		assert.Equal(t, http.StatusOK, do("192.0.2.3:1234", "bob"))
	})
}
