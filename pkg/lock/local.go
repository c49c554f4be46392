package lock

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Local is an in-process keyed lock; it only serializes callers
// sharing the same process
type Local struct {
	locks map[string]*localEntry
	mu    sync.Mutex
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal initializes an in-process locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Lock blocks until key is free or ctx is done
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Wrapf(ErrNotAcquired, "%s: %s", key, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Held returns the number of keys currently held or waited on
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
