package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/retry"
	"github.com/nfrund/roomchat/internal/roomsync"
	"github.com/nfrund/roomchat/internal/server"
	"github.com/nfrund/roomchat/internal/store"
	"github.com/nfrund/roomchat/internal/topicmgr"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
)

// Bridge is the process-wide in-memory pub/sub with its tracer.
type Bridge struct {
	*pubsub.WatermillBridge
	stopTracing func()
}

// Shutdown closes the bridge and flushes traces.
func (b *Bridge) Shutdown() error {
	err := b.Close()
	b.stopTracing()
	return err
}

// MessageBus carries message and delete events.
type MessageBus struct{ *channel.Bus }

// Shutdown closes the bus.
func (b *MessageBus) Shutdown() error { return b.Close() }

// PresenceBus carries presence snapshots.
type PresenceBus struct{ *channel.Bus }

// Shutdown closes the bus.
func (b *PresenceBus) Shutdown() error { return b.Close() }

// Store is the configured message store backend.
type Store struct{ store.MessageStore }

// Shutdown closes the backend.
func (s *Store) Shutdown() error { return s.Close() }

func provideBridge(ctx context.Context) do.Provider[*Bridge] {
	return func(i do.Injector) (*Bridge, error) {
		tracer, stop, err := pubsub.SetupOTel(ctx, pubsub.LoadTracingConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		return &Bridge{WatermillBridge: pubsub.NewWatermillBridgeWithTracer(tracer), stopTracing: stop}, nil
	}
}

func provideMessageBus(i do.Injector) (*MessageBus, error) {
	bridge, err := do.Invoke[*Bridge](i)
	if err != nil {
		return nil, err
	}
	topics := do.MustInvoke[*topicmgr.Manager](i)
	return &MessageBus{channel.New(bridge, channel.WithTopicManager(topics))}, nil
}

func providePresenceBus(i do.Injector) (*PresenceBus, error) {
	bridge, err := do.Invoke[*Bridge](i)
	if err != nil {
		return nil, err
	}
	topics := do.MustInvoke[*topicmgr.Manager](i)
	return &PresenceBus{channel.New(bridge,
		channel.WithNamespace(presence.Namespace), channel.WithTopicManager(topics))}, nil
}

func provideTracker(i do.Injector) (*presence.Tracker, error) {
	cfg := do.MustInvoke[config.Provider](i)
	bus, err := do.Invoke[*PresenceBus](i)
	if err != nil {
		return nil, err
	}
	return presence.NewTracker(bus,
		presence.WithStaleThreshold(cfg.GetPresenceStaleThreshold()),
		presence.WithSweepInterval(cfg.GetPresenceSweepInterval()),
		presence.WithOfflineDebounce(cfg.GetPresenceOfflineDebounce()),
	), nil
}

func provideStore(ctx context.Context, fs afero.Fs) do.Provider[*Store] {
	return func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[config.Provider](i)
		s, err := store.Open(ctx, cfg, fs)
		if err != nil {
			return nil, err
		}
		slog.Info("Message store ready", "backend", cfg.GetStoreBackend())
		return &Store{s}, nil
	}
}

// provideCookies is only registered when a session secret is configured.
func provideCookies(i do.Injector) (*auth.CookieProvider, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return auth.NewCookieProvider(cfg.GetSessionSecret()), nil
}

// cookies returns the cookie provider, or nil when cookie sessions are off.
func cookies(i do.Injector) *auth.CookieProvider {
	p, err := do.Invoke[*auth.CookieProvider](i)
	if err != nil {
		return nil
	}
	return p
}

func provideAuth(i do.Injector) (auth.Provider, error) {
	cfg := do.MustInvoke[config.Provider](i)
	var chain auth.Chain
	if c := cookies(i); c != nil {
		chain = append(chain, c)
	}
	if cfg.GetJWTSecret() != "" {
		chain = append(chain, auth.NewTokenProvider(cfg.GetJWTSecret()))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no session provider configured: set SESSION_SECRET or JWT_SECRET")
	}
	return chain, nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[config.Provider](i)
	authProvider, err := do.Invoke[auth.Provider](i)
	if err != nil {
		return nil, err
	}
	st, err := do.Invoke[*Store](i)
	if err != nil {
		return nil, err
	}
	messages, err := do.Invoke[*MessageBus](i)
	if err != nil {
		return nil, err
	}
	tracker, err := do.Invoke[*presence.Tracker](i)
	if err != nil {
		return nil, err
	}
	retryer := retry.NewExponentialBackoff(retry.WithMaxRetries(cfg.GetSyncSubscribeRetries()))

	return server.New(server.Deps{
		Config:   cfg,
		Store:    st,
		Messages: messages,
		Tracker:  tracker,
		Auth:     authProvider,
		Cookies:  cookies(i),
		EngineOptions: []roomsync.Option{
			roomsync.WithRetryer(retryer),
			roomsync.WithHeartbeatInterval(cfg.GetSyncHeartbeatInterval()),
		},
	}), nil
}
