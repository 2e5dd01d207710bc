package server

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	requireSession := middleware.Auth(s.authProvider)
	rateLimiter := middleware.RateLimiter(publishRatePerSecond, publishBurst)

	s.E.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.E.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.E.Group("/api/rooms/:room", requireSession)
	api.GET("/messages", s.messageHandler.List)
	api.POST("/messages", s.messageHandler.Create, rateLimiter)
	api.DELETE("/messages/:id", s.messageHandler.Delete)
	api.GET("/presence", s.presenceHandler.Get)

	s.E.GET("/ws", s.socketHandler.Serve, requireSession)
	s.E.GET("/ws/rooms/:room", s.socketHandler.Serve, requireSession)

	if s.cookies != nil {
		s.E.DELETE("/auth/session", s.signOut)
	}
}

func (s *Server) signOut(c echo.Context) error {
	sess, err := session.Get(auth.CookieSessionName, c)
	if err != nil {
		return err
	}
	if err := auth.SignOut(c.Response(), c.Request(), sess); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
