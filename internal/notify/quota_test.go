package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestQuota_LimitsPerFarmAndDay(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 2, nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-01")

	require.NoError(t, q.Take(ctx, "farm-1", day))
	require.NoError(t, q.Take(ctx, "farm-1", day))
	assert.ErrorIs(t, q.Take(ctx, "farm-1", day), ErrLimitReached)

	used, err := q.Used(ctx, "farm-1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, used, "rejected takes are not counted")

	assert.NoError(t, q.Take(ctx, "farm-2", day))
	assert.NoError(t, q.Take(ctx, "farm-1", day.AddDays(1)))

	assert.True(t, mr.Exists("rabbitry:notify:farm-1:2025-06-01"))
	assert.Equal(t, quotaTTL, mr.TTL("rabbitry:notify:farm-1:2025-06-01"))

	mr.FastForward(quotaTTL + time.Second)
	assert.False(t, mr.Exists("rabbitry:notify:farm-1:2025-06-01"))
}

func TestQuota_TakeAlwaysLeavesTTL(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 5, nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-01")
	key := "rabbitry:notify:farm-1:2025-06-01"

	// a counter that lost its expiry, e.g. written by an older deployment
	require.NoError(t, mr.Set(key, "1"))
	require.Equal(t, time.Duration(0), mr.TTL(key))

	require.NoError(t, q.Take(ctx, "farm-1", day))
	assert.Equal(t, quotaTTL, mr.TTL(key))

	used, err := q.Used(ctx, "farm-1", day)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
}

func TestQuota_OverLimitTakeKeepsTTL(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 1, nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-01")
	key := "rabbitry:notify:farm-1:2025-06-01"

	require.NoError(t, q.Take(ctx, "farm-1", day))
	mr.FastForward(time.Hour)
	assert.ErrorIs(t, q.Take(ctx, "farm-1", day), ErrLimitReached)

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Equal(t, quotaTTL, mr.TTL(key))
}

func TestQuota_Refund(t *testing.T) {
	_, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 1, nil)
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-01")

	require.NoError(t, q.Take(ctx, "farm-1", day))
	require.NoError(t, q.Refund(ctx, "farm-1", day))
	assert.NoError(t, q.Take(ctx, "farm-1", day))
}

func TestQuota_Disabled(t *testing.T) {
	ctx := context.Background()
	day := calendar.MustParseDate("2025-06-01")

	var nilQuota *Quota
	assert.NoError(t, nilQuota.Take(ctx, "farm-1", day))
	assert.NoError(t, NewQuota(nil, 5, nil).Take(ctx, "farm-1", day))

	_, rdb := setupTestRedis(t)
	unlimited := NewQuota(rdb, 0, nil)
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Take(ctx, "farm-1", day))
	}
}

func TestQuota_RedisDown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	q := NewQuota(rdb, 3, nil)
	mr.Close()

	err := q.Take(context.Background(), "farm-1", calendar.MustParseDate("2025-06-01"))
	assert.ErrorIs(t, err, ErrTransient)
}
