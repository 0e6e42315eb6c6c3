package rate

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer client.Close()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, "test:", 2, time.Minute)
	l.Now = func() time.Time { return base.Add(10 * time.Second) }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "otp:fp")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "otp:fp")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50*time.Second, res.RetryAfter)
	assert.EqualValues(t, 3, res.CurrentHits)

	key := "test:otp:fp:" + strconv.FormatInt(base.Unix(), 10)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	// ventana siguiente
	l.Now = func() time.Time { return base.Add(70 * time.Second) }
	res, err = l.Allow(ctx, "otp:fp")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	res, _ := l.Allow(ctx, "k")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "k")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	res, _ = l.Allow(ctx, "other")
	assert.True(t, res.Allowed)
}
