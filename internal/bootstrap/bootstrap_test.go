package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chata-intake/internal/config"
	"chata-intake/internal/events"
	"chata-intake/internal/repository"
	"chata-intake/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func baseConfig() *config.Config {
	cfg := config.Load()
	cfg.DBEnabled = false
	cfg.MQTT.Enabled = false
	return cfg
}

func TestOpen_RedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := baseConfig()
	cfg.Store.Backend = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.StoreRedis, b.KVBackend)
	assert.IsType(t, &store.RedisKV{}, b.KV)
	assert.IsType(t, &repository.MemorySubmissionsRepository{}, b.Submissions)
	assert.IsType(t, events.Multi{}, b.Events)
	assert.NoError(t, b.Health(context.Background()))
}

func TestOpen_RedisDownFallsBackToMemory(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig()
	cfg.Redis.Addr = addr

	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.StoreMemory, b.KVBackend)
	assert.Nil(t, b.Redis)
	assert.Equal(t, events.Nop{}, b.Events)
}

func TestOpen_SQLiteBackendAndPurge(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Backend = config.StoreSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "drafts.db")

	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.SQLite)

	ctx := context.Background()
	require.NoError(t, b.KV.Set(ctx, "chata:draft:A", "{}", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	core, logs := observer.New(zap.InfoLevel)
	loopCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	require.NoError(t, b.PurgeLoop(loopCtx, 10*time.Millisecond, zap.New(core)))

	purged := logs.FilterMessage("Purged expired drafts").All()
	require.Len(t, purged, 1)
	assert.EqualValues(t, 1, purged[0].ContextMap()["count"])
}

func TestOpen_SQLiteBackendStillStreamsEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := baseConfig()
	cfg.Store.Backend = config.StoreSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "drafts.db")
	cfg.Redis.Addr = mr.Addr()
	cfg.Events.Enabled = true
	cfg.Events.Stream = "chata:events"

	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.SQLiteKV{}, b.KV)
	require.NotNil(t, b.Redis)
	require.NoError(t, b.Events.Publish(context.Background(), events.Event{
		Type:       events.TypeSubmitted,
		ChataID:    "CHATA-00000001",
		OccurredAt: time.Now(),
	}))

	msgs, err := b.Redis.XRange(context.Background(), "chata:events", "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestOpen_EventsWarnWhenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig()
	cfg.Store.Backend = config.StoreMemory
	cfg.Redis.Addr = addr
	cfg.Events.Enabled = true

	core, logs := observer.New(zap.WarnLevel)
	b, err := Open(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, events.Nop{}, b.Events)
	assert.Equal(t, 1, logs.FilterMessage("Redis unavailable, submission events not streamed").Len())
}
