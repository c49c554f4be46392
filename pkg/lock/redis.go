package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a crashed holder can keep a redis lock
const DefaultTTL = 30 * time.Second

// releases the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed keyed lock shared by every instance
// talking to the same redis server
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to redis and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, database.Unavailable(errors.Wrapf(err, "failed to reach redis at %s", addr))
	}

	return client, nil
}

// NewRedis initializes a redis locker; ttl bounds how long a lock lives
// without being released, wait bounds how long Lock keeps trying
func NewRedis(client *redis.Client, ttl, wait time.Duration) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if wait <= 0 {
		wait = ttl
	}

	l := &Redis{
		client: client,
		prefix: "orgkeeper:lock:",
		ttl:    ttl,
		wait:   wait,
		poll:   20 * time.Millisecond,
	}

	return l, nil
}

// SetLogger assigns a logger
func (l *Redis) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[lock]")
	}

	l.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (l *Redis) Logger() *zap.Logger {
	if l.logger == nil {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize lock logger: %s", err))
		}

		l.logger = logger
	}

	return l.logger
}

// Lock polls until the key is set by us, the wait runs out or ctx is done
func (l *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	key = l.prefix + key
	token := uuid.New().String()

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(errors.Wrapf(err, "failed to acquire lock %s", key))
		}

		if !ok {
			return false, ErrNotAcquired
		}

		return true, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(l.poll)),
		backoff.WithMaxElapsedTime(l.wait),
	)

	if err != nil {
		if errors.Is(err, ErrNotAcquired) {
			return nil, errors.Wrapf(ErrNotAcquired, "%s", key)
		}

		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrNotAcquired, "%s: %s", key, err)
		}

		return nil, err
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			// release must happen even if the caller's context is already done
			if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
				l.Logger().Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
