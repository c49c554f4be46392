package database

import (
	"context"
	"fmt"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Badger is an embedded transactional store; conflicting transactions
// are detected by badger at commit and retried
type Badger struct {
	db      *badger.DB
	retries uint
	logger  *zap.Logger
}

// OpenBadger opens (or creates) a badger database inside dir
func OpenBadger(dir string, logger *zap.Logger) (*Badger, error) {
	dir, err := util.ExpandPath(dir)
	if err != nil {
		return nil, err
	}

	if err = util.CreateDirectoryIfNotExists(dir, 0755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dir)
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger.Named("[badger]").Sugar()})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger database at %s", dir)
	}

	b, err := NewBadger(db)
	if err != nil {
		return nil, err
	}

	if err = b.SetLogger(logger); err != nil {
		return nil, err
	}

	return b, nil
}

// NewBadger wraps an already opened badger database
func NewBadger(db *badger.DB) (*Badger, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &Badger{db: db, retries: DefaultRetries}, nil
}

// SetLogger assigns a logger
func (b *Badger) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[database]")
	}

	b.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (b *Badger) Logger() *zap.Logger {
	if b.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize database logger: %s", err))
		}

		b.logger = l
	}

	return b.logger
}

// SetRetries sets how many times a conflicting transaction is attempted
func (b *Badger) SetRetries(n uint) {
	if n > 0 {
		b.retries = n
	}
}

// DB returns the underlying badger database
func (b *Badger) DB() *badger.DB {
	return b.db
}

// Close closes the underlying database
func (b *Badger) Close() error {
	return b.db.Close()
}

// WithinTransaction runs fn inside a read-write transaction, joining
// the one already carried by ctx
func (b *Badger) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(ckBadgerTxn).(*badger.Txn); ok {
		return fn(ctx)
	}

	return retry(ctx, b.retries, b.Logger(), func() error {
		txn := b.db.NewTransaction(true)
		defer txn.Discard()

		tctx, state := withState(ctx)
		tctx = context.WithValue(tctx, ckBadgerTxn, txn)

		if err := fn(tctx); err != nil {
			return err
		}

		if err := txn.Commit(); err != nil {
			if err == badger.ErrConflict {
				return Conflict(err)
			}

			return Unavailable(errors.Wrap(err, "failed to commit transaction"))
		}

		state.commit()

		return nil
	})
}

// Update runs fn against the context transaction, opening one if needed
func (b *Badger) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return b.WithinTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(ckBadgerTxn).(*badger.Txn))
	})
}

// View runs fn against the context transaction so reads see pending
// writes and take part in conflict detection; without one it opens
// a read-only transaction
func (b *Badger) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(ckBadgerTxn).(*badger.Txn); ok {
		return fn(txn)
	}

	return b.db.View(fn)
}

//---------------------------------------------------------------------------
// value helpers shared by badger stores
//---------------------------------------------------------------------------

// GetJSON decodes the value stored under key into v; a missing key
// yields badger.ErrKeyNotFound
func GetJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return err
		}

		return Unavailable(errors.Wrapf(err, "failed to read %s", key))
	}

	return item.Value(func(val []byte) error {
		return errors.Wrapf(util.JSON.Unmarshal(val, v), "failed to decode %s", key)
	})
}

// DecodeJSON decodes a stored value
func DecodeJSON(val []byte, v interface{}) error {
	return errors.Wrap(util.JSON.Unmarshal(val, v), "failed to decode stored value")
}

// GetValue returns a copy of the raw value stored under key
func GetValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, err
		}

		return nil, Unavailable(errors.Wrapf(err, "failed to read %s", key))
	}

	return item.ValueCopy(nil)
}

// SetJSON encodes v and stores it under key
func SetJSON(txn *badger.Txn, key []byte, v interface{}) error {
	val, err := util.JSON.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}

	return Set(txn, key, val)
}

// Set stores a raw value under key
func Set(txn *badger.Txn, key, val []byte) error {
	if err := txn.Set(key, val); err != nil {
		return errors.Wrapf(err, "failed to store %s", key)
	}

	return nil
}

// Delete removes key
func Delete(txn *badger.Txn, key []byte) error {
	if err := txn.Delete(key); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}

	return nil
}

// Keys collects every key under prefix; the iterator is closed before
// returning, so callers may open another one or modify the keys
func Keys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	keys := make([][]byte, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}

	return keys, nil
}

// Values calls fn with every value stored under prefix; fn must not keep val
func Values(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}

	return nil
}

// badgerLogger forwards badger's internal logging to zap
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
