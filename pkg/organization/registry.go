package organization

import (
	"context"
	"fmt"
	"strings"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewOrganizationObject is the input for creating an organization
type NewOrganizationObject struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Domains     []string `json:"domains"`
}

// Registry owns organizations and their domain sets
type Registry struct {
	store  Store
	tx     database.Transactor
	cache  *Cache
	logger *zap.Logger
}

// NewRegistry initializing a new organization registry
func NewRegistry(s Store, tx database.Transactor) (*Registry, error) {
	if s == nil {
		return nil, ErrNilStore
	}

	if tx == nil {
		return nil, database.ErrNilDatabase
	}

	r := &Registry{
		store: s,
		tx:    tx,
	}

	return r, nil
}

// SetLogger assigns a logger for this registry
func (r *Registry) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[organization]")
	}

	r.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (r *Registry) Logger() *zap.Logger {
	if r.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize organization registry logger: %s", err))
		}

		r.logger = l
	}

	return r.logger
}

// SetCache assigns a read cache; nil disables caching
func (r *Registry) SetCache(c *Cache) {
	r.cache = c
}

// Create registers a new organization; at least one domain is required
func (r *Registry) Create(ctx context.Context, obj NewOrganizationObject) (o Organization, err error) {
	if len(obj.Domains) == 0 {
		return o, ErrEmptyDomainSet
	}

	now := util.Now()

	o = Organization{
		ID:          uuid.New(),
		Name:        obj.Name,
		Description: obj.Description,
		Enabled:     true,
		Domains:     obj.Domains,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err = o.Sanitize(); err != nil {
		return o, err
	}

	if err = o.Validate(); err != nil {
		return o, err
	}

	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.store.CreateOrganization(ctx, o)
	})

	if err != nil {
		return Organization{}, errors.Wrapf(err, "failed to create organization %s", o.Name)
	}

	r.Logger().Info(
		"created organization",
		zap.String("id", o.ID.String()),
		zap.String("name", o.Name),
		zap.Strings("domains", o.Domains),
	)

	return o, nil
}

// OrganizationByID returns an organization; reads inside a transaction
// always go to the store
func (r *Registry) OrganizationByID(ctx context.Context, id uuid.UUID) (o Organization, err error) {
	if id == uuid.Nil {
		return o, ErrOrganizationNotFound
	}

	cacheable := r.cache != nil && !database.InTransaction(ctx)
	if cacheable {
		if o, ok := r.cache.Get(id); ok {
			return o, nil
		}
	}

	o, err = r.store.FetchOrganizationByID(ctx, id)
	if err != nil {
		return o, errors.Wrapf(err, "failed to obtain organization by id: %s", id)
	}

	if cacheable {
		if err := r.cache.Put(o); err != nil {
			r.Logger().Warn("failed to cache organization", zap.String("id", id.String()), zap.Error(err))
		}
	}

	return o, nil
}

// OrganizationByName returns an organization by its case-insensitive name
func (r *Registry) OrganizationByName(ctx context.Context, name string) (o Organization, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return o, ErrOrganizationNotFound
	}

	o, err = r.store.FetchOrganizationByName(ctx, name)
	if err != nil {
		return o, errors.Wrapf(err, "failed to obtain organization by name: %s", name)
	}

	return o, nil
}

// OrganizationsByDomain returns every organization claiming the domain
func (r *Registry) OrganizationsByDomain(ctx context.Context, domain string) ([]Organization, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	orgs, err := r.store.FetchOrganizationsByDomain(ctx, d)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to obtain organizations by domain: %s", d)
	}

	return orgs, nil
}

// List returns all organizations
func (r *Registry) List(ctx context.Context) ([]Organization, error) {
	orgs, err := r.store.FetchAllOrganizations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list organizations")
	}

	return orgs, nil
}

// Lock makes the surrounding transaction the only writer of this
// organization until it ends
func (r *Registry) Lock(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrOrganizationNotFound
	}

	return r.store.LockOrganization(ctx, id)
}

// Update applies fn to the stored organization; the domain set can
// never end up empty
func (r *Registry) Update(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, o Organization) (Organization, error)) (updated Organization, err error) {
	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := r.store.FetchOrganizationByID(ctx, id)
		if err != nil {
			return err
		}

		// the callback gets its own copy of the domain set
		backup := before
		backup.Domains = append([]string(nil), before.Domains...)

		updated, err = fn(ctx, backup)
		if err != nil {
			return err
		}

		if updated.ID != before.ID {
			return ErrOrganizationIDChanged
		}

		if err = updated.Sanitize(); err != nil {
			return err
		}

		if err = updated.Validate(); err != nil {
			return err
		}

		updated.CreatedAt = before.CreatedAt
		updated.UpdatedAt = util.Now()

		if err = r.store.UpdateOrganization(ctx, before, updated); err != nil {
			return err
		}

		r.invalidate(ctx, id)

		return nil
	})

	if err != nil {
		return Organization{}, errors.Wrapf(err, "failed to update organization %s", id)
	}

	r.Logger().Debug("updated organization", zap.String("id", id.String()), zap.String("name", updated.Name))

	return updated, nil
}

// Delete removes the organization record only; members and the
// backing group are not touched here
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrOrganizationNotFound
	}

	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.store.DeleteOrganization(ctx, id); err != nil {
			return err
		}

		r.invalidate(ctx, id)

		return nil
	})

	if err != nil {
		return errors.Wrapf(err, "failed to delete organization %s", id)
	}

	r.Logger().Info("deleted organization", zap.String("id", id.String()))

	return nil
}

// invalidate drops the cached entry now and again once the transaction
// commits, so no reader repopulates it with the old state in between
func (r *Registry) invalidate(ctx context.Context, id uuid.UUID) {
	if r.cache == nil {
		return
	}

	r.cache.Delete(id)
	database.AfterCommit(ctx, func() { r.cache.Delete(id) })
}
