package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/matheus3301/qchat/internal/api"
	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/bus"
	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/config"
	"github.com/matheus3301/qchat/internal/lock"
	"github.com/matheus3301/qchat/internal/logging"
	"github.com/matheus3301/qchat/internal/profile"
	"github.com/matheus3301/qchat/internal/session"
	"github.com/matheus3301/qchat/internal/store"
	"github.com/matheus3301/qchat/internal/verify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
	// Config overrides ~/.qchat/config.toml when set.
	Config *config.Config
	// Logger overrides the file logger when set.
	Logger *zap.Logger
}

// Backends are the optional daemon-wide verifier and chart collection.
// Nil fields mean each tab uses its local implementation.
type Backends struct {
	Verifier verify.Verifier
	Charts   chart.Collection
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBlobs,
			provideBackends,
			provideManager,
			api.NewSessionService,
			api.NewMessageService,
			api.NewChartService,
			NewServer,
			provideMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(profile.EnvPath()); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	if p.Logger != nil {
		logger = p.Logger.With(zap.String("profile", p.Profile))
	} else {
		l, err := logging.New(logging.Options{
			Path:    profile.LogPath(p.Profile),
			Profile: p.Profile,
			Level:   cfg.Log.Level,
			Console: os.Stderr,
		})
		if err != nil {
			return nil, err
		}
		logger = l
	}
	logger.Info("config loaded",
		zap.String("channel", cfg.Channel.Mode),
		zap.String("verifier", cfg.Verifier.Kind),
		zap.String("charts", cfg.Charts.Backend))
	return logger, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBlobs(p Params, _ *lock.Lock, logger *zap.Logger) (*blob.Store, error) {
	return blob.Open(profile.BlobDir(p.Profile), logger)
}

func provideBackends(cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.Verifier.Kind {
	case "", "local":
	case "twilio":
		v, err := verify.NewTwilioVerifier(verify.TwilioCredentials{
			AccountSID: cfg.Verifier.TwilioAccountSID,
			AuthToken:  cfg.Verifier.TwilioAuthToken,
			ServiceSID: cfg.Verifier.TwilioServiceSID,
		}, logger)
		if err != nil {
			return nil, err
		}
		b.Verifier = v
	default:
		return nil, fmt.Errorf("unknown verifier %q", cfg.Verifier.Kind)
	}

	charts, err := chart.OpenShared(context.Background(), cfg.Charts.Backend, cfg.Charts.RedisURL, cfg.Charts.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open chart backend: %w", err)
	}
	b.Charts = charts
	return b, nil
}

func provideManager(p Params, cfg *config.Config, db *store.DB, blobs *blob.Store, b *bus.Bus, backends *Backends, logger *zap.Logger) *session.Manager {
	return session.NewManager(session.Options{
		Profile:  p.Profile,
		Config:   cfg,
		DB:       db,
		Blobs:    blobs,
		Bus:      b,
		Verifier: backends.Verifier,
		Charts:   backends.Charts,
		Logger:   logger,
	})
}

func provideMetricsServer(cfg *config.Config, m *session.Manager, b *bus.Bus, logger *zap.Logger) (*MetricsServer, error) {
	return NewMetricsServer(cfg.Metrics.Addr, m, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	metricsSrv *MetricsServer,
	manager *session.Manager,
	backends *Backends,
	db *store.DB,
	blobs *blob.Store,
	lk *lock.Lock,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if _, err := manager.OpenNamed(session.MainTab); err != nil {
				return fmt.Errorf("open main tab: %w", err)
			}

			srv.Start()
			metricsSrv.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			var errs []error
			if err := metricsSrv.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop metrics: %w", err))
			}
			if err := manager.CloseAll(); err != nil {
				errs = append(errs, fmt.Errorf("close tabs: %w", err))
			}
			if backends.Charts != nil {
				if err := backends.Charts.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close charts: %w", err))
				}
			}
			if err := blobs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close blobs: %w", err))
			}
			if err := db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return errors.Join(errs...)
		},
	})
}
