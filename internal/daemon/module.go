package daemon

import (
	"context"

	"github.com/lucasreis/chatsync/internal/bus"
	"github.com/lucasreis/chatsync/internal/config"
	"github.com/lucasreis/chatsync/internal/conn"
	"github.com/lucasreis/chatsync/internal/history"
	"github.com/lucasreis/chatsync/internal/lock"
	"github.com/lucasreis/chatsync/internal/logging"
	"github.com/lucasreis/chatsync/internal/media"
	"github.com/lucasreis/chatsync/internal/metrics"
	"github.com/lucasreis/chatsync/internal/queue"
	"github.com/lucasreis/chatsync/internal/session"
	"github.com/lucasreis/chatsync/internal/status"
	"github.com/lucasreis/chatsync/internal/submit"
	"github.com/lucasreis/chatsync/internal/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
	// ClientID overrides the configured client id when non-empty.
	ClientID string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideRegistry,
			provideMetrics,
			provideLock,
			provideTimeline,
			provideQueue,
			provideResolver,
			provideHistoryClient,
			providePaginator,
			provideSupervisor,
			provideSubmitter,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.ClientID != "" {
		cfg.ClientID = p.ClientID
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(cfg.ClientID), cfg.ClientID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(cfg.ClientID); err != nil {
		return nil, err
	}
	logger.Info("acquiring client lock", zap.String("client_id", cfg.ClientID))
	l, err := lock.Acquire(session.Dir(cfg.ClientID))
	if err != nil {
		return nil, err
	}
	logger.Info("client lock acquired")
	return l, nil
}

func provideTimeline() *timeline.Store {
	return timeline.NewStore()
}

func provideQueue(cfg *config.Config) *queue.Buffer {
	return queue.New(cfg.QueueCapacity)
}

func provideResolver(cfg *config.Config) *media.Resolver {
	return media.NewResolver(cfg.ServerURL)
}

func provideHistoryClient(cfg *config.Config) *history.Client {
	return history.NewClient(cfg.ServerURL, nil)
}

func providePaginator(client *history.Client, store *timeline.Store, resolver *media.Resolver,
	machine *status.Machine, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger,
	cfg *config.Config) *history.Paginator {
	return history.NewPaginator(client, store, resolver, machine, b, m, logger,
		cfg.ClientID, cfg.HistoryLimit)
}

func provideSupervisor(cfg *config.Config, machine *status.Machine, q *queue.Buffer,
	store *timeline.Store, paginator *history.Paginator, resolver *media.Resolver,
	b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *conn.Supervisor {
	return conn.NewSupervisor(conn.Config{
		SocketURL:        cfg.SocketURL(),
		ClientID:         cfg.ClientID,
		Timezone:         cfg.Timezone,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}, nil, machine, q, store, paginator, resolver, b, m, logger)
}

func provideSubmitter(supervisor *conn.Supervisor, store *timeline.Store,
	b *bus.Bus, logger *zap.Logger) *submit.Submitter {
	return submit.NewSubmitter(supervisor, store, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock,
	supervisor *conn.Supervisor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http surface error", zap.Error(err))
				}
			}()

			// Initial connect. Failure is not fatal: the surface stays
			// up and POST /connect retries on demand.
			go func() {
				if err := supervisor.Connect(context.Background()); err != nil {
					logger.Error("initial connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			supervisor.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
