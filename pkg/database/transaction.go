package database

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultRetries is how many times a conflicting transaction is attempted
const DefaultRetries = 10

// Transactor runs a function inside a single transactional boundary;
// the transaction rides in the context, and every store call made
// with that context joins it
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type contextKey int

const (
	ckState contextKey = iota
	ckBadgerTxn
	ckSQLTx
)

// txState holds whatever must happen once the surrounding transaction commits
type txState struct {
	hooks []func()
	sync.Mutex
}

func (s *txState) add(fn func()) {
	s.Lock()
	s.hooks = append(s.hooks, fn)
	s.Unlock()
}

func (s *txState) commit() {
	s.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func withState(ctx context.Context) (context.Context, *txState) {
	s := &txState{}
	return context.WithValue(ctx, ckState, s), s
}

// InTransaction tells whether the context carries an open transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(ckState).(*txState)
	return ok
}

// AfterCommit schedules fn to run once the surrounding transaction
// commits; without a transaction fn runs immediately. Hooks of
// a rolled back transaction are dropped
func AfterCommit(ctx context.Context, fn func()) {
	if s, ok := ctx.Value(ckState).(*txState); ok {
		s.add(fn)
		return
	}

	fn()
}

// retry runs attempt until it succeeds, fails with anything other than
// a conflict, or runs out of tries; exhausted conflicts surface as unavailability
func retry(ctx context.Context, tries uint, logger *zap.Logger, attempt func() error) error {
	if tries == 0 {
		tries = DefaultRetries
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         250 * time.Millisecond,
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := attempt()
		if err == nil {
			return struct{}{}, nil
		}

		if errors.Is(err, ErrConflict) {
			return struct{}{}, err
		}

		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying conflicting transaction", zap.Duration("next", next), zap.Error(err))
		}),
	)

	if errors.Is(err, ErrConflict) {
		return Unavailable(errors.Wrap(err, "transaction retries exhausted"))
	}

	return err
}
