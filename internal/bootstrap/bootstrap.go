// Package bootstrap opens the backing services named in config and
// degrades to in-process fallbacks when they are unreachable.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chata-intake/common/database"
	"chata-intake/common/mqtt"
	rediscommon "chata-intake/common/redis"
	"chata-intake/internal/config"
	"chata-intake/internal/events"
	"chata-intake/internal/repository"
	"chata-intake/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Backends opened resources; Close releases them
type Backends struct {
	KV          store.KV
	KVBackend   string
	Redis       *redis.Client
	SQLite      *store.SQLiteKV
	DB          *sql.DB
	Submissions repository.SubmissionsRepository
	Events      events.Publisher
	MQTT        *mqtt.Client
}

// Open connects the draft store, submission archive and event publishers
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}
	if err := b.openKV(ctx, cfg, logger); err != nil {
		return nil, err
	}
	b.openArchive(ctx, cfg, logger)
	b.openEvents(ctx, cfg, logger)
	return b, nil
}

func (b *Backends) openKV(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		kv, err := store.NewSQLiteKV(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite draft store: %w", err)
		}
		b.SQLite = kv
		b.KV = kv
		b.KVBackend = config.StoreSQLite
		logger.Info("Draft store: sqlite", zap.String("path", cfg.Store.SQLitePath))
	case config.StoreMemory:
		b.KV = store.NewMemoryKV()
		b.KVBackend = config.StoreMemory
		logger.Warn("Draft store: memory, drafts will not survive a restart")
	default:
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-memory draft store",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			b.KV = store.NewMemoryKV()
			b.KVBackend = config.StoreMemory
			return nil
		}
		b.Redis = client
		b.KV = store.NewRedisKV(client)
		b.KVBackend = config.StoreRedis
		logger.Info("Draft store: redis", zap.String("addr", cfg.Redis.Addr))
	}
	return nil
}

func (b *Backends) openArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err == nil {
			repo := repository.NewPostgresSubmissionsRepository(db)
			if err = repo.EnsureSchema(ctx); err == nil {
				b.DB = db
				b.Submissions = repo
				logger.Info("Submission archive: postgres", zap.String("host", cfg.Database.Host))
				return
			}
			_ = db.Close()
		}
		logger.Warn("DB enabled but unavailable, falling back to in-memory archive", zap.Error(err))
	}
	b.Submissions = repository.NewMemorySubmissionsRepository()
}

func (b *Backends) openEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	var pubs events.Multi
	if cfg.Events.Enabled && b.Redis == nil {
		// drafts live elsewhere; the stream still needs its own connection
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("Redis unavailable, submission events not streamed",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
		} else {
			b.Redis = client
		}
	}
	if cfg.Events.Enabled && b.Redis != nil {
		pubs = append(pubs, events.NewRedisStream(b.Redis, cfg.Events.Stream, cfg.Events.StreamMaxLen))
	}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig)
		if err != nil {
			logger.Warn("MQTT unavailable, submission notifications disabled", zap.Error(err))
		} else {
			b.MQTT = client
			pubs = append(pubs, events.NewMQTT(client, cfg.MQTT.TopicPrefix))
		}
	}
	if len(pubs) == 0 {
		b.Events = events.Nop{}
		return
	}
	b.Events = pubs
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := rediscommon.NewRedisClient(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rediscommon.Ping(pingCtx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Health pings whatever remote backends are open
func (b *Backends) Health(ctx context.Context) error {
	if b.Redis != nil {
		if err := rediscommon.Ping(ctx, b.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if b.DB != nil {
		if err := b.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// PurgeLoop deletes expired sqlite drafts every interval until ctx ends.
// No-op for other backends.
func (b *Backends) PurgeLoop(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	if b.SQLite == nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := b.SQLite.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("Draft purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Purged expired drafts", zap.Int64("count", n))
			}
		}
	}
}

func (b *Backends) Close() {
	if b.MQTT != nil {
		b.MQTT.Disconnect()
	}
	if b.SQLite != nil {
		_ = b.SQLite.Close()
	}
	_ = rediscommon.Close(b.Redis)
	if b.DB != nil {
		_ = database.Close(b.DB)
	}
}
