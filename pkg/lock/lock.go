package lock

import (
	"context"

	"github.com/pkg/errors"
)

// errors
var (
	ErrNotAcquired = errors.New("lock was not acquired")
	ErrEmptyKey    = errors.New("empty lock key")
	ErrNilClient   = errors.New("redis client is nil")
)

// Unlock releases a held lock; calling it more than once is harmless
type Unlock func()

// Locker hands out exclusive, keyed locks
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// OrganizationKey is the lock key guarding everything owned by an organization
func OrganizationKey(id string) string {
	return "organization:" + id
}
