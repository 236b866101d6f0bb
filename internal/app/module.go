// Package app composes the sync engine's components into an fx module.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/attachfs"
	"github.com/Andrew-022/michatapp-sub000/internal/bus"
	"github.com/Andrew-022/michatapp-sub000/internal/cache"
	"github.com/Andrew-022/michatapp-sub000/internal/chat"
	"github.com/Andrew-022/michatapp-sub000/internal/config"
	"github.com/Andrew-022/michatapp-sub000/internal/conv"
	"github.com/Andrew-022/michatapp-sub000/internal/feed"
	"github.com/Andrew-022/michatapp-sub000/internal/lock"
	"github.com/Andrew-022/michatapp-sub000/internal/logging"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/outbox"
	"github.com/Andrew-022/michatapp-sub000/internal/payload"
	"github.com/Andrew-022/michatapp-sub000/internal/store"
	"github.com/Andrew-022/michatapp-sub000/internal/store/boltstore"
	"github.com/Andrew-022/michatapp-sub000/internal/store/sqlstore"
	intsync "github.com/Andrew-022/michatapp-sub000/internal/sync"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("michatd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideFS,
			provideCodec,
			provideQueue,
			provideCache,
			provideRegistry,
			provideFeed,
			provideUploader,
			provideEngine,
			providePipeline,
			provideManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), cfg.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.ResolveDataDir()))
	l, err := lock.Acquire(cfg.ResolveDataDir())
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (store.KV, error) {
	var (
		kv  store.KV
		err error
	)
	if cfg.StoreBackend == "bolt" {
		kv, err = boltstore.Open(cfg.StorePath())
	} else {
		kv, err = sqlstore.Open(cfg.StorePath())
	}
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized",
		zap.String("backend", cfg.StoreBackend),
		zap.String("path", cfg.StorePath()))
	return kv, nil
}

func provideFS() attachfs.FS {
	return attachfs.NewLocal(nil)
}

func provideCodec(logger *zap.Logger) *payload.Codec {
	return payload.NewCodec(logger)
}

func provideQueue(fs attachfs.FS, kv store.KV, cfg *config.Config, logger *zap.Logger) *media.Queue {
	return media.NewQueue(fs, kv, media.Options{
		Dir:        cfg.AttachmentDir(),
		FileScheme: cfg.Platform == "android",
	}, logger)
}

func provideCache(kv store.KV, fs attachfs.FS, logger *zap.Logger) *cache.ConversationCache {
	return cache.New(kv, fs, logger)
}

func provideRegistry(b *bus.Bus) *conv.Registry {
	return conv.NewRegistry(b)
}

func provideFeed(cfg *config.Config, logger *zap.Logger) (feed.Feed, error) {
	return feed.DialWSDefault(cfg.FeedURL, logger)
}

func provideUploader(cfg *config.Config) feed.Uploader {
	return &feed.HTTPUploader{BaseURL: cfg.UploadURL}
}

func provideEngine(registry *conv.Registry, c *cache.ConversationCache, codec *payload.Codec, images *media.Queue, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(registry, c, codec, images, cfg.UserID, logger)
}

func providePipeline(registry *conv.Registry, c *cache.ConversationCache, codec *payload.Codec, images *media.Queue, f feed.Feed, up feed.Uploader, cfg *config.Config, logger *zap.Logger) *outbox.Pipeline {
	return outbox.NewPipeline(registry, c, codec, images, f, up, cfg.UserID, logger)
}

func provideManager(f feed.Feed, engine *intsync.Engine, pipeline *outbox.Pipeline, registry *conv.Registry, logger *zap.Logger) *chat.Manager {
	return chat.NewManager(f, engine, pipeline, registry, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, kv store.KV, f feed.Feed, images *media.Queue, pipeline *outbox.Pipeline, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if cfg.EvictMaxAgeDays > 0 {
				maxAge := time.Duration(cfg.EvictMaxAgeDays) * 24 * time.Hour
				go images.EvictOlderThan(context.Background(), maxAge)
			}
			logger.Info("engine started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			if outstanding := pipeline.Outstanding(); len(outstanding) > 0 {
				logger.Warn("stopping with sends still in flight",
					zap.Strings("client_msg_ids", outstanding))
			}
			if closer, ok := f.(*feed.WSFeed); ok {
				_ = closer.Close()
			}
			if err := kv.Close(); err != nil {
				logger.Warn("store close failed", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
