package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/stretchr/testify/assert"
)

func TestLocal_MutualExclusion(t *testing.T) {
	a := assert.New(t)

	l := lock.NewLocal()
	ctx := context.Background()

	var (
		inside  int32
		maximum int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := l.Lock(ctx, "organization:1")
			if !a.NoError(err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maximum)
				if n <= m || atomic.CompareAndSwapInt32(&maximum, m, n) {
					break
				}
			}

			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}

	wg.Wait()

	a.EqualValues(1, maximum)
	a.Equal(0, l.Held())
}

func TestLocal_IndependentKeys(t *testing.T) {
	a := assert.New(t)

	l := lock.NewLocal()
	ctx := context.Background()

	unlock1, err := l.Lock(ctx, "a")
	a.NoError(err)

	// another key is not blocked
	unlock2, err := l.Lock(ctx, "b")
	a.NoError(err)

	unlock1()
	unlock2()

	// unlocking twice is harmless
	unlock1()
	a.Equal(0, l.Held())

	_, err = l.Lock(ctx, "")
	a.True(errors.Is(err, lock.ErrEmptyKey))
}

func TestLocal_ContextCancel(t *testing.T) {
	a := assert.New(t)

	l := lock.NewLocal()

	unlock, err := l.Lock(context.Background(), "a")
	a.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "a")
	a.True(errors.Is(err, lock.ErrNotAcquired))

	unlock()
	a.Equal(0, l.Held())

	// free again
	unlock, err = l.Lock(context.Background(), "a")
	a.NoError(err)
	unlock()
}
