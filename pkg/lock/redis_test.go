package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func redisLockerForTesting(t *testing.T, ttl, wait time.Duration) (*lock.Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := lock.NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l, err := lock.NewRedis(client, ttl, wait)
	require.NoError(t, err)
	require.NoError(t, l.SetLogger(zap.NewNop()))

	return l, mr
}

func TestRedis_LockUnlock(t *testing.T) {
	a := assert.New(t)

	l, mr := redisLockerForTesting(t, time.Second, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "organization:1")
	a.NoError(err)
	a.True(mr.Exists("orgkeeper:lock:organization:1"))

	// held by someone else
	_, err = l.Lock(ctx, "organization:1")
	a.True(errors.Is(err, lock.ErrNotAcquired))

	unlock()
	a.False(mr.Exists("orgkeeper:lock:organization:1"))

	unlock, err = l.Lock(ctx, "organization:1")
	a.NoError(err)
	unlock()
	unlock()
}

func TestRedis_ExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	a := assert.New(t)

	l, mr := redisLockerForTesting(t, time.Second, 100*time.Millisecond)
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, "k")
	a.NoError(err)

	// the first holder stalls past the ttl
	mr.FastForward(2 * time.Second)

	unlock2, err := l.Lock(ctx, "k")
	a.NoError(err)

	// the stale unlock must not free the new holder's lock
	unlock1()
	a.True(mr.Exists("orgkeeper:lock:k"))

	unlock2()
	a.False(mr.Exists("orgkeeper:lock:k"))
}

func TestRedis_WaitsForRelease(t *testing.T) {
	a := assert.New(t)

	l, _ := redisLockerForTesting(t, 5*time.Second, 2*time.Second)
	ctx := context.Background()

	var (
		inside  int32
		maximum int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := l.Lock(ctx, "shared")
			if !a.NoError(err) {
				return
			}
			defer unlock()

			if n := atomic.AddInt32(&inside, 1); n > atomic.LoadInt32(&maximum) {
				atomic.StoreInt32(&maximum, n)
			}

			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}

	wg.Wait()
	a.EqualValues(1, maximum)
}

func TestNewRedis(t *testing.T) {
	a := assert.New(t)

	_, err := lock.NewRedis(nil, 0, 0)
	a.True(errors.Is(err, lock.ErrNilClient))

	_, err = lock.NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	a.Error(err)

	var _ lock.Locker = &lock.Redis{}
	var _ lock.Locker = lock.NewLocal()
}
