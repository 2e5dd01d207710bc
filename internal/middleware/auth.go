package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/domain"
)

// SessionContextKey is where Auth stores the *domain.Session.
const SessionContextKey = "session"

// Auth rejects requests without a session. Failures are returned as errors
// wrapping domain.ErrNoSession so the server's error handler answers 401.
func Auth(provider auth.Provider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := provider.SessionFromRequest(c.Request())
			if err != nil {
				FromContext(c.Request().Context()).Debug("Request without session", "path", c.Path(), "error", err)
				return err
			}
			if !sess.Valid() {
				return domain.ErrNoSession
			}

			c.Set(SessionContextKey, sess)
			return next(c)
		}
	}
}

// SessionFrom returns the session stored by Auth.
func SessionFrom(c echo.Context) (*domain.Session, bool) {
	sess, ok := c.Get(SessionContextKey).(*domain.Session)
	return sess, ok && sess.Valid()
}
