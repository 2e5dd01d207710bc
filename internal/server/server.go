package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/handlers"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/roomsync"
	"github.com/nfrund/roomchat/internal/store"
)

// Publish rate limit per participant.
const (
	publishRatePerSecond = 5
	publishBurst         = 10
)

// Deps are the collaborators the HTTP server is built from.
type Deps struct {
	Config   config.Provider
	Store    store.MessageStore
	Messages channel.Broadcaster
	Tracker  *presence.Tracker
	Auth     auth.Provider
	// Cookies enables the cookie session middleware and sign-out. Optional.
	Cookies       *auth.CookieProvider
	EngineOptions []roomsync.Option
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	Cfg config.Provider

	authProvider    auth.Provider
	cookies         *auth.CookieProvider
	messageHandler  *handlers.MessageHandler
	presenceHandler *handlers.PresenceHandler
	socketHandler   *handlers.SocketHandler
}

// New creates a Server and registers its routes.
func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(middleware.Metrics)
	e.Use(echomw.Recover())
	if d.Cookies != nil {
		e.Use(session.Middleware(d.Cookies.Store()))
	}
	setupErrorHandling(e)

	s := &Server{
		E:               e,
		Cfg:             d.Config,
		authProvider:    d.Auth,
		cookies:         d.Cookies,
		messageHandler:  handlers.NewMessageHandler(roomsync.NewMediator(d.Store, d.Messages)),
		presenceHandler: handlers.NewPresenceHandler(d.Tracker),
		socketHandler:   handlers.NewSocketHandler(d.Store, d.Messages, d.Tracker, d.Config.GetDefaultRoom(), d.EngineOptions...),
	}
	s.socketHandler.OriginPatterns = d.Config.GetAllowedOrigins()
	s.RegisterRoutes()
	return s
}

// setupErrorHandling answers every error with the JSON error body. Errors
// that map to no known failure are logged with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := handlers.NewErrorResponse(err)
		logger := middleware.FromContext(c.Request().Context())
		switch {
		case status == http.StatusInternalServerError:
			logger.Error("Internal Server Error (Unhandled)",
				"error", err.Error(),
				"method", c.Request().Method,
				"path", c.Path(),
				"stack_trace", string(debug.Stack()),
			)
		case status >= http.StatusInternalServerError:
			logger.Warn("Request failed", "status", status, "error", err)
		default:
			logger.Debug("Request rejected", "status", status, "code", body.Code, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			slog.Error("Failed to write error response", "error", err)
		}
	}
}
