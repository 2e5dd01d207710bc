// Package app wires the room chat services together.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/server"
	"github.com/nfrund/roomchat/internal/store"
	"github.com/nfrund/roomchat/internal/topicmgr"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
)

// App owns the service container.
type App struct {
	injector *do.RootScope
	cfg      config.Provider
}

// Option configures an App.
type Option func(*options)

type options struct {
	fs     afero.Fs
	topics *topicmgr.Manager
}

// WithFs sets the filesystem used by the file store backend.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithTopicManager sets the topic registry shared by both buses.
func WithTopicManager(m *topicmgr.Manager) Option {
	return func(o *options) { o.topics = m }
}

// New registers every service. Nothing is constructed until first use.
func New(ctx context.Context, cfg config.Provider, opts ...Option) *App {
	o := options{topics: topicmgr.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	injector := do.New()
	do.ProvideValue[config.Provider](injector, cfg)
	do.ProvideValue(injector, o.topics)
	do.Provide(injector, provideBridge(ctx))
	do.Provide(injector, provideMessageBus)
	do.Provide(injector, providePresenceBus)
	do.Provide(injector, provideTracker)
	do.Provide(injector, provideStore(ctx, o.fs))
	if cfg.GetSessionSecret() != "" {
		do.Provide(injector, provideCookies)
	}
	do.Provide(injector, provideAuth)
	do.Provide(injector, provideServer)

	return &App{injector: injector, cfg: cfg}
}

// Server builds the HTTP server and everything it depends on.
func (a *App) Server() (*server.Server, error) {
	return do.Invoke[*server.Server](a.injector)
}

// Store returns the message store backend.
func (a *App) Store() (store.MessageStore, error) {
	return do.Invoke[*Store](a.injector)
}

// Tracker returns the presence tracker.
func (a *App) Tracker() (*presence.Tracker, error) {
	return do.Invoke[*presence.Tracker](a.injector)
}

// Run serves HTTP until ctx is done, then shuts every service down.
func (a *App) Run(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return errors.Join(err, a.Shutdown())
	}
	runErr := srv.Start(ctx, a.cfg.GetAppAddr())
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops services in reverse dependency order.
func (a *App) Shutdown() error {
	report := a.injector.Shutdown()
	if report != nil && !report.Succeed {
		slog.Error("Shutdown finished with errors", "error", report.Error())
		return report
	}
	return nil
}
