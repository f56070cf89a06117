package lock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	first := NewRedisLocker(client, "pass", time.Minute)
	second := NewRedisLocker(client, "pass", time.Minute)

	leaseCtx, release, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("pass"))
	assert.NoError(t, leaseCtx.Err())

	_, _, err = second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	release()
	release()
	assert.False(t, mr.Exists("pass"))
	assert.Error(t, leaseCtx.Err())
	assert.NotErrorIs(t, context.Cause(leaseCtx), ErrLeaseLost)

	_, release, err = second.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestRedisLocker_ReleaseKeepsForeignLease(t *testing.T) {
	client, mr := setupTestRedis(t)

	locker := NewRedisLocker(client, "pass", time.Minute)
	_, release, err := locker.Acquire(context.Background())
	require.NoError(t, err)

	// The lease expired and another instance took it.
	require.NoError(t, mr.Set("pass", "other-token"))

	release()
	got, err := mr.Get("pass")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLocker_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	locker := NewRedisLocker(client, "pass", time.Minute)
	require.NoError(t, mr.Set("pass", "token"))

	held, err := locker.extend(ctx, "token")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, time.Minute, mr.TTL("pass"))

	held, err = locker.extend(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedisLocker_LostLeaseCancelsContext(t *testing.T) {
	client, mr := setupTestRedis(t)

	locker := NewRedisLocker(client, "pass", 300*time.Millisecond)
	leaseCtx, release, err := locker.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	// Another instance took the key after our lease lapsed.
	require.NoError(t, mr.Set("pass", "other-token"))

	select {
	case <-leaseCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("lease context not cancelled after the lease was lost")
	}
	assert.ErrorIs(t, context.Cause(leaseCtx), ErrLeaseLost)

	release()
	got, err := mr.Get("pass")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLocker_Defaults(t *testing.T) {
	locker := NewRedisLocker(nil, "", 0)
	assert.Equal(t, "milestone:pass:lease", locker.key)
	assert.Equal(t, time.Minute, locker.ttl)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := Config{Host: mr.Host(), Port: mustPort(t, mr), ConnectRetries: 1}
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()

	leaseCtx, release, err := locker.Acquire(context.Background())
	require.NoError(t, err)

	_, _, err = locker.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLeaseHeld)

	release()
	release()
	assert.Error(t, leaseCtx.Err())

	_, release, err = locker.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
