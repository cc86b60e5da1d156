// Package daemon composes the local engine: store, repositories, remote
// client, sync engine and scheduler, wired through fx.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mneme-app/mneme/internal/bus"
	"github.com/mneme-app/mneme/internal/config"
	"github.com/mneme-app/mneme/internal/device"
	"github.com/mneme-app/mneme/internal/lock"
	"github.com/mneme-app/mneme/internal/logging"
	"github.com/mneme-app/mneme/internal/remote"
	"github.com/mneme-app/mneme/internal/store"
	intsync "github.com/mneme-app/mneme/internal/sync"
)

// tombstoneRetention bounds how long locally synced tombstones are kept
// before purge on startup.
const tombstoneRetention = 30 * 24 * time.Hour

// Params holds the resolved data directory passed to the fx module.
type Params struct {
	BaseDir string
}

// deviceID is the stable per-install identity, distinct from plain string
// params so fx can tell them apart.
type deviceID string

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideDeviceID,
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideChatRepo,
			provideMessageRepo,
			provideUserRepo,
			provideClient,
			provideEngine,
			provideScheduler,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideDeviceID(p Params) (deviceID, error) {
	if err := device.EnsureDirs(p.BaseDir); err != nil {
		return "", err
	}
	id, err := device.ID(p.BaseDir)
	if err != nil {
		return "", err
	}
	return deviceID(id), nil
}

func provideLogger(p Params, id deviceID) (*zap.Logger, error) {
	return logging.New(device.LogPath(p.BaseDir), string(id))
}

func provideConfig(p Params) *config.Config {
	return config.LoadOrDefault(device.ConfigPath(p.BaseDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *intsync.Machine {
	return intsync.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data directory lock", zap.String("dir", p.BaseDir))
	l, err := lock.Acquire(p.BaseDir)
	if err != nil {
		return nil, err
	}
	logger.Info("lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := device.DBPath(p.BaseDir)
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

func provideChatRepo(db *store.DB, b *bus.Bus) *store.ChatRepo {
	return store.NewChatRepo(db, b)
}

func provideMessageRepo(db *store.DB, b *bus.Bus) *store.MessageRepo {
	return store.NewMessageRepo(db, b)
}

func provideUserRepo(db *store.DB, b *bus.Bus) *store.UserRepo {
	return store.NewUserRepo(db, b)
}

func provideClient(cfg *config.Config, id deviceID) *remote.Client {
	return remote.NewClient(cfg.ServerURL, string(id), cfg.RequestTimeout())
}

func provideEngine(db *store.DB, chats *store.ChatRepo, messages *store.MessageRepo,
	users *store.UserRepo, client *remote.Client, machine *intsync.Machine,
	b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, chats, messages, users, client, machine, b, logger)
}

func provideScheduler(engine *intsync.Engine, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Scheduler {
	return intsync.NewScheduler(engine, b, cfg.PushDebounce(), logger)
}

func registerLifecycle(lc fx.Lifecycle, db *store.DB, engine *intsync.Engine,
	scheduler *intsync.Scheduler, cfg *config.Config, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.PurgeTombstones(tombstoneRetention)
			scheduler.Start(context.Background())

			if cfg.SyncEnabled {
				// Startup sync runs in the background; failures leave
				// state pending for the next cycle.
				go func() {
					if err := engine.Sync(context.Background()); err != nil {
						logger.Info("startup sync skipped", zap.Error(err))
					}
				}()
			} else {
				logger.Info("sync disabled by config")
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			scheduler.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
