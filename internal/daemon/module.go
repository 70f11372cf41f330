package daemon

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/analytics"
	"github.com/remedygo/remedyd/internal/api"
	"github.com/remedygo/remedyd/internal/assist"
	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/chat"
	"github.com/remedygo/remedyd/internal/config"
	"github.com/remedygo/remedyd/internal/lock"
	"github.com/remedygo/remedyd/internal/logging"
	"github.com/remedygo/remedyd/internal/profile"
	"github.com/remedygo/remedyd/internal/session"
	"github.com/remedygo/remedyd/internal/status"
	"github.com/remedygo/remedyd/internal/store"
	"github.com/remedygo/remedyd/internal/tracker"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRestClient,
			provideFeed,
			provideEmitter,
			provideDrainer,
			provideSessionManager,
			provideTracker,
			provideChatEngine,
			provideAssistService,
			provideIdentityCache,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		// A missing or broken config file is survivable: every knob has a
		// default and backend URLs can come from the environment.
		cfg = &config.Config{}
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = os.Getenv("REMEDYGO_BASE_URL")
	}
	if cfg.Backend.FeedURL == "" {
		cfg.Backend.FeedURL = os.Getenv("REMEDYGO_FEED_URL")
	}
	if cfg.Backend.APIKey == "" {
		cfg.Backend.APIKey = os.Getenv("REMEDYGO_API_KEY")
	}
	if cfg.Backend.AccessToken == "" {
		cfg.Backend.AccessToken = os.Getenv("REMEDYGO_ACCESS_TOKEN")
	}
	if cfg.Assist.APIKey == "" {
		cfg.Assist.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRestClient(cfg *config.Config, logger *zap.Logger) *backend.RestClient {
	return backend.NewRestClient(cfg.Backend, logger)
}

func provideFeed(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *backend.Feed {
	return backend.NewFeed(cfg.Backend, b, machine, logger)
}

func provideEmitter(rest *backend.RestClient, db *store.DB, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *analytics.Emitter {
	return analytics.NewEmitter(rest, db, machine, b, logger)
}

func provideDrainer(cfg *config.Config, emitter *analytics.Emitter, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *analytics.Drainer {
	return analytics.NewDrainer(emitter, machine, b, time.Duration(cfg.Tuning.DrainIntervalSec)*time.Second, logger)
}

func provideSessionManager(cfg *config.Config, rest *backend.RestClient, emitter *analytics.Emitter, b *bus.Bus, logger *zap.Logger) *session.Manager {
	threshold := time.Duration(cfg.Tuning.BackgroundThresholdMin) * time.Minute
	return session.NewManager(rest, emitter, b, threshold, logger)
}

func provideTracker(emitter *analytics.Emitter, logger *zap.Logger) *tracker.Tracker {
	return tracker.NewTracker(emitter, logger)
}

func provideChatEngine(cfg *config.Config, db *store.DB, rest *backend.RestClient, b *bus.Bus, logger *zap.Logger) *chat.Engine {
	lease := time.Duration(cfg.Tuning.TypingLeaseSec) * time.Second
	return chat.NewEngine(db, rest, b, lease, logger)
}

func provideAssistService(cfg *config.Config, emitter *analytics.Emitter, logger *zap.Logger) *assist.Service {
	return assist.NewService(cfg.Assist, emitter, logger)
}

func provideIdentityCache() *api.IdentityCache {
	return api.NewIdentityCache()
}

// Handlers bundles the HTTP handlers the server mounts.
type Handlers struct {
	fx.Out

	Lifecycle *api.LifecycleHandler
	Chat      *api.ChatHandler
	Analytics *api.AnalyticsHandler
	Assist    *api.AssistHandler
	Status    *api.StatusHandler
}

func provideHandlers(
	p Params,
	rest *backend.RestClient,
	sessions *session.Manager,
	tr *tracker.Tracker,
	cache *api.IdentityCache,
	engine *chat.Engine,
	emitter *analytics.Emitter,
	drainer *analytics.Drainer,
	assistSvc *assist.Service,
	machine *status.Machine,
	db *store.DB,
	logger *zap.Logger,
) Handlers {
	return Handlers{
		Lifecycle: api.NewLifecycleHandler(rest, sessions, tr, cache, engine, logger),
		Chat:      api.NewChatHandler(engine, cache),
		Analytics: api.NewAnalyticsHandler(emitter, drainer, db, cache),
		Assist:    api.NewAssistHandler(assistSvc, cache),
		Status:    api.NewStatusHandler(p.ProfileName, machine, sessions, cache, db),
	}
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	feed *backend.Feed,
	engine *chat.Engine,
	drainer *analytics.Drainer,
	sessions *session.Manager,
	rest *backend.RestClient,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Consume feed deltas before the feed connects so nothing is
			// dropped during the first burst.
			engine.Start(context.Background())
			drainer.Start(context.Background())
			feed.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			feed.Stop()
			drainer.Stop()
			engine.Stop()
			// Close the session explicitly; the beacon path is for abrupt
			// backgrounding, shutdown can afford to await the write.
			sessions.EndSession(ctx)
			rest.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
