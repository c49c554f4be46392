package group

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilDatabase      = errors.New("database is nil")
	ErrNilGroupStore    = errors.New("group store is nil")
	ErrZeroID           = errors.New("id is zero")
	ErrZeroMemberID     = errors.New("member id is zero")
	ErrEmptyGroupName   = errors.New("empty group name")
	ErrInvalidGroupName = errors.New("invalid group name")
	ErrReservedName     = errors.New("group name is reserved for organizations")
	ErrDuplicateGroup   = errors.New("duplicate group")
	ErrGroupNotFound    = errors.New("group not found")
	ErrMemberNotFound   = errors.New("member not found")
)

// Manager provisions groups and keeps their member references
type Manager struct {
	store  Store
	tx     database.Transactor
	logger *zap.Logger
}

// NewManager returns a new group manager instance
func NewManager(s Store, tx database.Transactor) (*Manager, error) {
	if s == nil {
		return nil, ErrNilGroupStore
	}

	if tx == nil {
		return nil, ErrNilDatabase
	}

	m := &Manager{
		store: s,
		tx:    tx,
	}

	return m, nil
}

// SetLogger assigns a logger for this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[group]")
	}

	m.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize group manager logger: %s", err))
		}

		m.logger = l
	}

	return m.logger
}

func (m *Manager) create(ctx context.Context, name, description string) (g Group, err error) {
	g = Group{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   util.Now(),
	}

	if err = g.Validate(); err != nil {
		return g, err
	}

	err = m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.CreateGroup(ctx, g)
	})

	if err != nil {
		return Group{}, pkgerrors.Wrapf(err, "failed to create group %s", g.Name)
	}

	m.Logger().Debug("created group", zap.String("id", g.ID.String()), zap.String("name", g.Name))

	return g, nil
}

// Create creates an ordinary group; backing group names are off limits
func (m *Manager) Create(ctx context.Context, name, description string) (Group, error) {
	if strings.HasPrefix(strings.TrimSpace(name), BackingGroupPrefix) {
		return Group{}, ErrReservedName
	}

	return m.create(ctx, name, description)
}

// CreateBackingGroup creates the group mirroring an organization's
// membership; fails with ErrDuplicateGroup if it already exists
func (m *Manager) CreateBackingGroup(ctx context.Context, orgID uuid.UUID) (Group, error) {
	if orgID == uuid.Nil {
		return Group{}, ErrZeroID
	}

	return m.create(ctx, BackingGroupName(orgID), "members of organization "+orgID.String())
}

// GroupByID returns a group by id
func (m *Manager) GroupByID(ctx context.Context, id uuid.UUID) (g Group, err error) {
	if id == uuid.Nil {
		return g, ErrGroupNotFound
	}

	g, err = m.store.FetchGroupByID(ctx, id)
	if err != nil {
		return g, pkgerrors.Wrapf(err, "failed to obtain group by id: %s", id)
	}

	return g, nil
}

// GroupByName returns a group by its exact name
func (m *Manager) GroupByName(ctx context.Context, name string) (g Group, err error) {
	g, err = m.store.FetchGroupByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return g, pkgerrors.Wrapf(err, "failed to obtain group by name: %s", name)
	}

	return g, nil
}

// BackingGroup returns the backing group of an organization
func (m *Manager) BackingGroup(ctx context.Context, orgID uuid.UUID) (Group, error) {
	return m.GroupByName(ctx, BackingGroupName(orgID))
}

// List returns groups whose name starts with prefix; an empty prefix lists all
func (m *Manager) List(ctx context.Context, prefix string) ([]Group, error) {
	gs, err := m.store.FetchGroupsByName(ctx, true, prefix)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list groups")
	}

	return gs, nil
}

// Attach adds a member reference to the group; attaching twice is a no-op
func (m *Manager) Attach(ctx context.Context, groupID, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrZeroMemberID
	}

	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.CreateRelation(ctx, groupID, userID)
	})

	if err != nil {
		return pkgerrors.Wrapf(err, "failed to attach %s to group %s", userID, groupID)
	}

	m.Logger().Debug("attached member", zap.String("group_id", groupID.String()), zap.String("user_id", userID.String()))

	return nil
}

// Detach removes a member reference; detaching a non-member is a no-op
func (m *Manager) Detach(ctx context.Context, groupID, userID uuid.UUID) error {
	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.DeleteRelation(ctx, groupID, userID)
	})

	if err != nil {
		return pkgerrors.Wrapf(err, "failed to detach %s from group %s", userID, groupID)
	}

	m.Logger().Debug("detached member", zap.String("group_id", groupID.String()), zap.String("user_id", userID.String()))

	return nil
}

// DetachAll removes the user from every group
func (m *Manager) DetachAll(ctx context.Context, userID uuid.UUID) error {
	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.DeleteRelationsByMember(ctx, userID)
	})

	return pkgerrors.Wrapf(err, "failed to detach %s from all groups", userID)
}

// IsMember tells whether the user is attached to the group
func (m *Manager) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	ok, err := m.store.HasRelation(ctx, groupID, userID)
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to check group membership")
	}

	return ok, nil
}

// Members returns ids of every user attached to the group
func (m *Manager) Members(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := m.GroupByID(ctx, groupID); err != nil {
		return nil, err
	}

	ids, err := m.store.FetchMemberIDs(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to obtain members of group %s", groupID)
	}

	return ids, nil
}

// GroupsByMember returns every group the user is attached to
func (m *Manager) GroupsByMember(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	ids, err := m.store.FetchGroupIDsByMember(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to obtain groups of %s", userID)
	}

	gs := make([]Group, 0, len(ids))
	for _, id := range ids {
		g, err := m.store.FetchGroupByID(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to obtain group %s", id)
		}

		gs = append(gs, g)
	}

	return gs, nil
}

// DeleteGroup removes a group with all of its member references
func (m *Manager) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrGroupNotFound
	}

	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return m.store.DeleteByID(ctx, id)
	})

	if err != nil {
		return pkgerrors.Wrapf(err, "failed to delete group %s", id)
	}

	m.Logger().Debug("deleted group", zap.String("id", id.String()))

	return nil
}

// DeleteBackingGroup removes an organization's backing group
func (m *Manager) DeleteBackingGroup(ctx context.Context, orgID uuid.UUID) error {
	return m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		g, err := m.BackingGroup(ctx, orgID)
		if err != nil {
			return err
		}

		return m.DeleteGroup(ctx, g.ID)
	})
}
