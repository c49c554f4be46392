package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agubarev/orgkeeper/internal/config"
	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/group"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/membership"
	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Core is the assembled engine: stores, managers and the membership
// service on top of them
type Core struct {
	orgs     *organization.Registry
	users    *user.Manager
	groups   *group.Manager
	service  *membership.Service
	postgres *database.Postgres
	closers  []io.Closer
	logger   *zap.Logger
	closed   bool
	mu       sync.Mutex
}

// stores is the set of backends bound to one database
type stores struct {
	tx     database.Transactor
	orgs   organization.Store
	users  user.Store
	groups group.Store
}

// New builds the core described by the configuration; whatever was
// opened is released again if anything fails
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	c := &Core{}

	if err := c.SetLogger(logger); err != nil {
		return nil, err
	}

	if err := c.init(ctx, cfg); err != nil {
		if serr := c.Shutdown(); serr != nil {
			c.Logger().Error("failed to release resources after a failed start", zap.Error(serr))
		}

		return nil, err
	}

	return c, nil
}

func (c *Core) init(ctx context.Context, cfg *config.Config) error {
	l := c.Logger()

	//---------------------------------------------------------------------------
	// storage
	//---------------------------------------------------------------------------
	l.Info("initializing storage", zap.String("driver", cfg.Storage.Driver))

	s, err := c.openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	//---------------------------------------------------------------------------
	// per-organization lock
	//---------------------------------------------------------------------------
	l.Info("initializing locker", zap.String("driver", cfg.Lock.Driver))

	locker, err := c.openLocker(ctx, cfg)
	if err != nil {
		return err
	}

	//---------------------------------------------------------------------------
	// managers
	//---------------------------------------------------------------------------
	policy := user.Policy{
		UnmanagedAttributes: cfg.UnmanagedAttributesEnabled(),
		EditUsernameAllowed: cfg.User.EditUsernameAllowed,
	}

	if err = c.assemble(s, locker, policy, cfg.Cache.Organization.TTL); err != nil {
		return err
	}

	l.Info("core is ready")

	return nil
}

func (c *Core) openStorage(ctx context.Context, cfg *config.Config) (s stores, err error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		db, err := database.OpenBadger(cfg.Storage.Badger.Dir, c.Logger())
		if err != nil {
			return s, err
		}

		c.closers = append(c.closers, db)
		db.SetRetries(cfg.Storage.Retries)

		return badgerStores(db)
	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.Storage.Postgres.DSN, c.Logger())
		if err != nil {
			return s, err
		}

		c.closers = append(c.closers, db)
		c.postgres = db
		db.SetRetries(cfg.Storage.Retries)

		return postgresStores(db)
	default:
		return s, errors.Wrapf(ErrUnknownStorage, "%q", cfg.Storage.Driver)
	}
}

func (c *Core) openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	switch cfg.Lock.Driver {
	case config.DriverLocal:
		return lock.NewLocal(), nil
	case config.DriverRedis:
		client, err := lock.NewRedisClient(ctx, cfg.Lock.Redis.Addr, cfg.Lock.Redis.Password, cfg.Lock.Redis.DB)
		if err != nil {
			return nil, err
		}

		c.closers = append(c.closers, client)

		l, err := lock.NewRedis(client, cfg.Lock.TTL, cfg.Lock.Wait)
		if err != nil {
			return nil, err
		}

		if err = l.SetLogger(c.Logger()); err != nil {
			return nil, err
		}

		return l, nil
	default:
		return nil, errors.Wrapf(ErrUnknownLock, "%q", cfg.Lock.Driver)
	}
}

// assemble builds the managers and the membership service over the stores
func (c *Core) assemble(s stores, locker lock.Locker, policy user.Policy, cacheTTL time.Duration) (err error) {
	if c.orgs, err = organization.NewRegistry(s.orgs, s.tx); err != nil {
		return err
	}

	if err = c.orgs.SetLogger(c.Logger()); err != nil {
		return err
	}

	if cacheTTL > 0 {
		cache, err := organization.NewCache(cacheTTL)
		if err != nil {
			return err
		}

		c.closers = append(c.closers, cache)
		c.orgs.SetCache(cache)
	}

	if c.users, err = user.NewManager(s.users, s.tx); err != nil {
		return err
	}

	if err = c.users.SetLogger(c.Logger()); err != nil {
		return err
	}

	c.users.SetPolicy(policy)

	if c.groups, err = group.NewManager(s.groups, s.tx); err != nil {
		return err
	}

	if err = c.groups.SetLogger(c.Logger()); err != nil {
		return err
	}

	if c.service, err = membership.NewService(c.orgs, c.users, c.groups, s.tx, locker); err != nil {
		return err
	}

	return c.service.SetLogger(c.Logger())
}

func badgerStores(db *database.Badger) (s stores, err error) {
	s.tx = db

	if s.orgs, err = organization.NewBadgerStore(db); err != nil {
		return s, err
	}

	if s.users, err = user.NewBadgerStore(db); err != nil {
		return s, err
	}

	if s.groups, err = group.NewBadgerStore(db); err != nil {
		return s, err
	}

	return s, nil
}

func postgresStores(db *database.Postgres) (s stores, err error) {
	s.tx = db

	if s.orgs, err = organization.NewPostgresStore(db); err != nil {
		return s, err
	}

	if s.users, err = user.NewPostgresStore(db); err != nil {
		return s, err
	}

	if s.groups, err = group.NewPostgresStore(db); err != nil {
		return s, err
	}

	return s, nil
}

// Registry returns the organization registry
func (c *Core) Registry() *organization.Registry {
	if c.orgs == nil {
		panic(organization.ErrNilRegistry)
	}

	return c.orgs
}

// UserManager returns the user manager
func (c *Core) UserManager() *user.Manager {
	if c.users == nil {
		panic(membership.ErrNilUserManager)
	}

	return c.users
}

// GroupManager returns the group manager
func (c *Core) GroupManager() *group.Manager {
	if c.groups == nil {
		panic(membership.ErrNilGroupManager)
	}

	return c.groups
}

// Membership returns the membership service
func (c *Core) Membership() *membership.Service {
	if c.service == nil {
		panic(ErrNilCore)
	}

	return c.service
}

// Postgres returns the postgres database if that's the configured storage
func (c *Core) Postgres() (*database.Postgres, error) {
	if c.postgres == nil {
		return nil, ErrNotPostgres
	}

	return c.postgres, nil
}

// Shutdown releases every resource in reverse order of acquisition
func (c *Core) Shutdown() error {
	if c == nil {
		return ErrNilCore
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyShutdown
	}

	c.closed = true

	var failed error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.Logger().Error("failed to release resource", zap.Error(err))

			if failed == nil {
				failed = err
			}
		}
	}

	return failed
}

// SetLogger setting a primary logger for the core
func (c *Core) SetLogger(logger *zap.Logger) error {
	// if logger is set, then giving it a name
	// to know the log context
	if logger != nil {
		logger = logger.Named("[orgkeeper]")
	}

	c.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
// a new default emergency logger
// NOTE: will panic if it finally fails to obtain a logger
func (c *Core) Logger() *zap.Logger {
	if c.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			// having a working logger is crucial, thus must panic() if initialization fails
			panic(fmt.Errorf("failed to initialize core logger: %s", err))
		}

		c.logger = l
	}

	return c.logger
}
