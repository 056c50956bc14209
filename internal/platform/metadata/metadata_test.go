package metadata

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, PrimeDB(db, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewGormStore(db)
}

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb)
}

func TestStores(t *testing.T) {
	stores := map[string]func(*testing.T) Store{
		"gorm":  newGormStore,
		"redis": newRedisStore,
	}
	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)

			val, err := s.GetValue(ctx, LastWeeklyCloseKey)
			require.NoError(t, err)
			assert.Empty(t, val)

			require.NoError(t, s.SetValue(ctx, LastWeeklyCloseKey, "2026-W41"))
			require.NoError(t, s.SetValue(ctx, LastWeeklyCloseKey, "2026-W42"))
			require.NoError(t, s.SetValue(ctx, LastReplenishKey, "2026-10-14"))

			val, err = s.GetValue(ctx, LastWeeklyCloseKey)
			require.NoError(t, err)
			assert.Equal(t, "2026-W42", val)

			val, err = s.GetValue(ctx, LastReplenishKey)
			require.NoError(t, err)
			assert.Equal(t, "2026-10-14", val)
		})
	}
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, NewRedisStore(rdb).SetValue(context.Background(), LastReplenishKey, "2026-10-14"))
	got, err := mr.Get(RedisPrefix + LastReplenishKey)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", got)
}
