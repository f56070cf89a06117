package lock

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"UD_milestone_rewards/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrLeaseHeld = errors.New("lease is held by another holder")
	ErrLeaseLost = errors.New("lease lost")
)

// Locker grants an exclusive lease. The returned context is cancelled by
// release, or with cause ErrLeaseLost once the lease is lost. Release is safe
// to call more than once.
type Locker interface {
	Acquire(ctx context.Context) (leaseCtx context.Context, release func(), err error)
}

type Config struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	Key            string `yaml:"key"`
	ConnectRetries uint64 `yaml:"connectRetries"`
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	notify := func(err error, wait time.Duration) {
		logger.Logger().Warn("redis not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return client, nil
}

var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker holds a lease key with a random token. While held, the lease is
// extended every third of its TTL so a long pass does not lose it.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = "milestone:pass:lease"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (context.Context, func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to acquire lease")
	}
	if !ok {
		return nil, nil, ErrLeaseHeld
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if !l.keepAlive(token, done) {
			cancel(ErrLeaseLost)
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cancel(context.Canceled)

			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
				logger.Logger().Warn("failed to release lease", zap.String("key", l.key), zap.Error(err))
			}
		})
	}

	return leaseCtx, release, nil
}

// keepAlive extends the lease until done is closed. It returns false once the
// key no longer holds token.
func (l *RedisLocker) keepAlive(token string, done <-chan struct{}) bool {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			held, err := l.extend(context.Background(), token)
			if err != nil {
				logger.Logger().Warn("failed to extend lease", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if !held {
				logger.Logger().Error("lease lost", zap.String("key", l.key))
				return false
			}
		}
	}
}

func (l *RedisLocker) extend(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// LocalLocker is an in-process lease for single-instance deployments.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) Acquire(ctx context.Context) (context.Context, func(), error) {
	if !l.mu.TryLock() {
		return nil, nil, ErrLeaseHeld
	}

	leaseCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	return leaseCtx, func() {
		once.Do(func() {
			cancel()
			l.mu.Unlock()
		})
	}, nil
}
