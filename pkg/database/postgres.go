package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gocraft/dbr/v2"
	"github.com/gocraft/dbr/v2/dialect"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Postgres is a dbr connection over the pgx driver; transactions are
// carried by the context as *dbr.Tx
type Postgres struct {
	conn    *dbr.Connection
	retries uint
	logger  *zap.Logger
}

// OpenPostgres connects to a postgres database described by dsn
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Unavailable(errors.Wrap(err, "failed to reach postgres"))
	}

	p, err := NewPostgres(db)
	if err != nil {
		return nil, err
	}

	if err = p.SetLogger(logger); err != nil {
		return nil, err
	}

	return p, nil
}

// NewPostgres wraps an already opened database handle
func NewPostgres(db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	p := &Postgres{
		conn: &dbr.Connection{
			DB:            db,
			Dialect:       dialect.PostgreSQL,
			EventReceiver: &dbr.NullEventReceiver{},
		},
		retries: DefaultRetries,
	}

	return p, nil
}

// SetLogger assigns a logger
func (p *Postgres) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[database]")
	}

	p.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (p *Postgres) Logger() *zap.Logger {
	if p.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize database logger: %s", err))
		}

		p.logger = l
	}

	return p.logger
}

// SetRetries sets how many times a conflicting transaction is attempted
func (p *Postgres) SetRetries(n uint) {
	if n > 0 {
		p.retries = n
	}
}

// Connection returns the underlying dbr connection
func (p *Postgres) Connection() *dbr.Connection {
	return p.conn
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.conn.Close()
}

// Runner returns the context transaction if there is one,
// otherwise a plain session
func (p *Postgres) Runner(ctx context.Context) dbr.SessionRunner {
	if tx, ok := ctx.Value(ckSQLTx).(*dbr.Tx); ok {
		return tx
	}

	return p.conn.NewSession(nil)
}

// WithinTransaction runs fn inside a database transaction, joining
// the one already carried by ctx
func (p *Postgres) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(ckSQLTx).(*dbr.Tx); ok {
		return fn(ctx)
	}

	return retry(ctx, p.retries, p.Logger(), func() error {
		tx, err := p.conn.NewSession(nil).BeginTx(ctx, nil)
		if err != nil {
			return ClassifyPostgresError(errors.Wrap(err, "failed to begin transaction"))
		}
		defer tx.RollbackUnlessCommitted()

		tctx, state := withState(ctx)
		tctx = context.WithValue(tctx, ckSQLTx, tx)

		if err = fn(tctx); err != nil {
			return ClassifyPostgresError(err)
		}

		if err = tx.Commit(); err != nil {
			return ClassifyPostgresError(errors.Wrap(err, "failed to commit transaction"))
		}

		state.commit()

		return nil
	})
}
