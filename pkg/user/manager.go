package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/r3labs/diff"
	"go.uber.org/zap"
)

// DefaultSearchLimit caps search results when no limit is given
const DefaultSearchLimit = 100

// Manager is the user manager
type Manager struct {
	store  Store
	tx     database.Transactor
	policy Policy
	guards []WriteGuard
	logger *zap.Logger
	sync.RWMutex
}

// NewManager returns a new user manager instance
func NewManager(s Store, tx database.Transactor) (*Manager, error) {
	if s == nil {
		return nil, ErrNilStore
	}

	if tx == nil {
		return nil, database.ErrNilDatabase
	}

	m := &Manager{
		store:  s,
		tx:     tx,
		policy: DefaultPolicy(),
		guards: make([]WriteGuard, 0),
	}

	return m, nil
}

// SetLogger assigns a logger for this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[user]")
	}

	m.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize user manager logger: %s", err))
		}

		m.logger = l
	}

	return m.logger
}

// SetPolicy replaces the identity schema policy
func (m *Manager) SetPolicy(p Policy) {
	m.Lock()
	m.policy = p
	m.Unlock()
}

// Policy returns the current identity schema policy
func (m *Manager) Policy() Policy {
	m.RLock()
	defer m.RUnlock()

	return m.policy
}

// AddWriteGuard registers a guard consulted on every user write
func (m *Manager) AddWriteGuard(g WriteGuard) error {
	if g == nil {
		return ErrNilGuard
	}

	m.Lock()
	m.guards = append(m.guards, g)
	m.Unlock()

	return nil
}

func (m *Manager) guard(ctx context.Context, w Write) error {
	m.RLock()
	guards := m.guards
	m.RUnlock()

	for _, g := range guards {
		if err := g.GuardWrite(ctx, w); err != nil {
			return err
		}
	}

	return nil
}

//---------------------------------------------------------------------------
// reading
//---------------------------------------------------------------------------

// UserByID returns a user by id
func (m *Manager) UserByID(ctx context.Context, id uuid.UUID) (u User, err error) {
	if id == uuid.Nil {
		return u, ErrUserNotFound
	}

	u, err = m.store.FetchUserByID(ctx, id)
	if err != nil {
		return u, errors.Wrapf(err, "failed to obtain user by id: %s", id)
	}

	return u, nil
}

// UserByUsername returns a user by username
func (m *Manager) UserByUsername(ctx context.Context, username string) (u User, err error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return u, ErrUserNotFound
	}

	u, err = m.store.FetchUserByUsername(ctx, username)
	if err != nil {
		return u, errors.Wrapf(err, "failed to obtain user by username: %s", username)
	}

	return u, nil
}

// UserByEmail returns a user by email
func (m *Manager) UserByEmail(ctx context.Context, email string) (u User, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return u, ErrUserNotFound
	}

	u, err = m.store.FetchUserByEmail(ctx, email)
	if err != nil {
		return u, errors.Wrapf(err, "failed to obtain user by email: %s", email)
	}

	return u, nil
}

// UsersByOrganization returns every user owned by the organization
func (m *Manager) UsersByOrganization(ctx context.Context, orgID uuid.UUID) ([]User, error) {
	us, err := m.store.FetchUsersByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to obtain users of organization %s", orgID)
	}

	return us, nil
}

// Search returns users whose username, email or name contain the query
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	us, err := m.store.SearchUsers(ctx, strings.ToLower(strings.TrimSpace(query)), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search users")
	}

	return us, nil
}

// CheckAvailability returns ErrUsernameTaken or ErrEmailTaken if either
// is already in use
func (m *Manager) CheckAvailability(ctx context.Context, username, email string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" {
		username = email
	}

	if _, err := m.store.FetchUserByUsername(ctx, username); err == nil {
		return errors.Wrapf(ErrUsernameTaken, "username %s", username)
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if email == "" {
		return nil
	}

	if _, err := m.store.FetchUserByEmail(ctx, email); err == nil {
		return errors.Wrapf(ErrEmailTaken, "email %s", email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	return nil
}

//---------------------------------------------------------------------------
// writing
//---------------------------------------------------------------------------

// CreateUser creates a new user; the username defaults to the email
func (m *Manager) CreateUser(ctx context.Context, fn func(ctx context.Context) (NewUserObject, error)) (u User, err error) {
	newUser, err := fn(ctx)
	if err != nil {
		return u, err
	}

	now := util.Now()

	u = User{
		ID:         uuid.New(),
		Username:   newUser.Username,
		Email:      newUser.Email,
		FirstName:  newUser.FirstName,
		LastName:   newUser.LastName,
		Enabled:    true,
		Attributes: newUser.Attributes.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	u.Sanitize()

	if u.Username == "" {
		u.Username = u.Email
	}

	if err = u.Validate(); err != nil {
		return u, err
	}

	err = m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := m.guard(ctx, Write{Op: OpCreate, After: u}); err != nil {
			return err
		}

		if err := m.Policy().checkCreate(u); err != nil {
			return err
		}

		return m.store.CreateUser(ctx, u)
	})

	if err != nil {
		return User{}, errors.Wrapf(err, "failed to create user %s", u.Username)
	}

	m.Logger().Debug(
		"created user",
		zap.String("id", u.ID.String()),
		zap.String("username", u.Username),
	)

	return u, nil
}

// UpdateUser applies fn to the stored user; every registered guard and
// the schema policy are consulted before anything is written, and the
// organization marker can't be changed through this path
func (m *Manager) UpdateUser(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, u User) (User, error)) (updated User, changelog diff.Changelog, err error) {
	err = m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := m.store.FetchUserByID(ctx, id)
		if err != nil {
			return err
		}

		// the callback gets its own copy of the attributes
		backup := before
		backup.Attributes = before.Attributes.Clone()

		updated, err = fn(ctx, backup)
		if err != nil {
			return err
		}

		if updated.ID != before.ID {
			return ErrUserIDChanged
		}

		updated.Sanitize()

		if reservedWrite(before, updated) {
			return ErrReservedAttributeWrite
		}

		if err = updated.Validate(); err != nil {
			return err
		}

		changelog, err = m.Policy().changelog(before, updated)
		if err != nil {
			return err
		}

		// nothing to write
		if len(changelog) == 0 {
			updated = before
			return nil
		}

		if err = m.guard(ctx, Write{Op: OpUpdate, Before: before, After: updated, Changelog: changelog}); err != nil {
			return err
		}

		updated.CreatedAt = before.CreatedAt
		updated.UpdatedAt = util.Now()

		return m.store.UpdateUser(ctx, before, updated, changelog)
	})

	if err != nil {
		return User{}, nil, errors.Wrapf(err, "failed to update user %s", id)
	}

	m.Logger().Debug(
		"updated user",
		zap.String("id", id.String()),
		zap.String("username", updated.Username),
		zap.Int("changes", len(changelog)),
	)

	return updated, changelog, nil
}

// PatchUser applies a partial update; a patch naming the organization
// marker is rejected whatever its value
func (m *Manager) PatchUser(ctx context.Context, id uuid.UUID, p Patch) (User, error) {
	if p.WritesOrganization() {
		return User{}, errors.Wrapf(ErrReservedAttributeWrite, "user %s: organization_id", id)
	}

	u, _, err := m.UpdateUser(ctx, id, func(ctx context.Context, u User) (User, error) {
		return p.Apply(u), nil
	})

	return u, err
}

// SetOrganization assigns or, given uuid.Nil, clears the owning
// organization; this is the only way the organization marker is written
// and is reserved for sanctioned membership operations
func (m *Manager) SetOrganization(ctx context.Context, id, orgID uuid.UUID) (updated User, err error) {
	err = m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		before, err := m.store.FetchUserByID(ctx, id)
		if err != nil {
			return err
		}

		updated = before
		updated.OrganizationID = orgID

		if before.OrganizationID == orgID {
			return nil
		}

		if err = m.guard(ctx, Write{Op: OpAssign, Before: before, After: updated, System: true}); err != nil {
			return err
		}

		updated.UpdatedAt = util.Now()

		return m.store.UpdateUser(ctx, before, updated, nil)
	})

	if err != nil {
		return User{}, errors.Wrapf(err, "failed to assign organization to user %s", id)
	}

	m.Logger().Debug(
		"assigned organization",
		zap.String("id", id.String()),
		zap.String("organization_id", orgID.String()),
	)

	return updated, nil
}

// DeleteUserByID destroys a user identity
func (m *Manager) DeleteUserByID(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrUserNotFound
	}

	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.DeleteUserByID(ctx, id)
	})

	if err != nil {
		return errors.Wrapf(err, "failed to delete user %s", id)
	}

	m.Logger().Debug("deleted user", zap.String("id", id.String()))

	return nil
}
