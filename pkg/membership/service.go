package membership

import (
	"context"
	"fmt"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/group"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service keeps users, organizations and backing groups consistent
// with each other; it is also registered as a user write guard so that
// every identity update path is domain-checked
type Service struct {
	orgs   *organization.Registry
	users  *user.Manager
	groups *group.Manager
	tx     database.Transactor
	locker lock.Locker
	logger *zap.Logger
}

// NewService initializes the membership service and registers it
// as a write guard with the user manager
func NewService(orgs *organization.Registry, users *user.Manager, groups *group.Manager, tx database.Transactor, locker lock.Locker) (*Service, error) {
	switch {
	case orgs == nil:
		return nil, ErrNilRegistry
	case users == nil:
		return nil, ErrNilUserManager
	case groups == nil:
		return nil, ErrNilGroupManager
	case tx == nil:
		return nil, ErrNilTransactor
	case locker == nil:
		return nil, ErrNilLocker
	}

	s := &Service{
		orgs:   orgs,
		users:  users,
		groups: groups,
		tx:     tx,
		locker: locker,
	}

	if err := users.AddWriteGuard(s); err != nil {
		return nil, errors.Wrap(err, "failed to register membership write guard")
	}

	return s, nil
}

// SetLogger assigns a logger for this service
func (s *Service) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[membership]")
	}

	s.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
func (s *Service) Logger() *zap.Logger {
	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("failed to initialize membership service logger: %s", err))
		}

		s.logger = l
	}

	return s.logger
}

// exclusive runs fn as the only writer of the organization: the
// organization lock is held for the whole transaction, and the
// organization record is locked inside it
func (s *Service) exclusive(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error {
	if orgID == uuid.Nil {
		return organization.ErrOrganizationNotFound
	}

	unlock, err := s.locker.Lock(ctx, lock.OrganizationKey(orgID.String()))
	if err != nil {
		return errors.Wrapf(err, "failed to lock organization %s", orgID)
	}
	defer unlock()

	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.orgs.Lock(ctx, orgID); err != nil {
			return err
		}

		return fn(ctx)
	})
}

//---------------------------------------------------------------------------
// organizations
//---------------------------------------------------------------------------

// CreateOrganization creates an organization together with its backing group
func (s *Service) CreateOrganization(ctx context.Context, obj organization.NewOrganizationObject) (o organization.Organization, err error) {
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		o, err = s.orgs.Create(ctx, obj)
		if err != nil {
			return err
		}

		_, err = s.groups.CreateBackingGroup(ctx, o.ID)

		return err
	})

	if err != nil {
		return organization.Organization{}, err
	}

	return o, nil
}

// UpdateOrganization updates an organization while holding it exclusively
func (s *Service) UpdateOrganization(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, o organization.Organization) (organization.Organization, error)) (o organization.Organization, err error) {
	err = s.exclusive(ctx, id, func(ctx context.Context) error {
		o, err = s.orgs.Update(ctx, id, fn)
		return err
	})

	if err != nil {
		return organization.Organization{}, err
	}

	return o, nil
}

//---------------------------------------------------------------------------
// members
//---------------------------------------------------------------------------

// AddMember creates a new user as a member of the organization: the
// candidate must be unused and its email must belong to one of the
// organization domains. Either everything is created or nothing is
func (s *Service) AddMember(ctx context.Context, orgID uuid.UUID, candidate user.NewUserObject) (u user.User, err error) {
	err = s.exclusive(ctx, orgID, func(ctx context.Context) error {
		o, err := s.orgs.OrganizationByID(ctx, orgID)
		if err != nil {
			return err
		}

		if err = s.users.CheckAvailability(ctx, candidate.Username, candidate.Email); err != nil {
			return err
		}

		wc := WriteContext{
			Op:                     user.OpCreate,
			Member:                 true,
			ReservedAttributeWrite: candidate.Attributes.Has(user.ReservedOrganizationAttribute),
		}

		if err = Validate(candidate.Email, o.Domains, wc); err != nil {
			s.Logger().Warn(
				"rejected new member",
				zap.String("organization_id", orgID.String()),
				zap.String("email", candidate.Email),
				zap.Error(err),
			)

			return err
		}

		u, err = s.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
			return candidate, nil
		})

		if err != nil {
			return err
		}

		if u, err = s.users.SetOrganization(ctx, u.ID, orgID); err != nil {
			return err
		}

		g, err := s.groups.BackingGroup(ctx, orgID)
		if err != nil {
			return err
		}

		return s.groups.Attach(ctx, g.ID, u.ID)
	})

	if err != nil {
		return user.User{}, errors.Wrapf(err, "failed to add member to organization %s", orgID)
	}

	s.Logger().Debug(
		"added member",
		zap.String("organization_id", orgID.String()),
		zap.String("user_id", u.ID.String()),
		zap.String("username", u.Username),
	)

	return u, nil
}

// GetMember returns the user only if it is a member of the organization
func (s *Service) GetMember(ctx context.Context, orgID, userID uuid.UUID) (u user.User, err error) {
	u, err = s.users.UserByID(ctx, userID)
	if err != nil {
		return user.User{}, err
	}

	if u.OrganizationID != orgID {
		return user.User{}, errors.Wrapf(ErrNotMember, "user %s, organization %s", userID, orgID)
	}

	return u, nil
}

// listMembers reads the members within the current transaction
func (s *Service) listMembers(ctx context.Context, orgID uuid.UUID) ([]user.User, error) {
	if _, err := s.orgs.OrganizationByID(ctx, orgID); err != nil {
		return nil, err
	}

	return s.users.UsersByOrganization(ctx, orgID)
}

// ListMembers returns every member of the organization, in no particular order
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) (members []user.User, err error) {
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		members, err = s.listMembers(ctx, orgID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return members, nil
}

// OrganizationForMember returns the organization owning the user
func (s *Service) OrganizationForMember(ctx context.Context, userID uuid.UUID) (o organization.Organization, err error) {
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return o, err
	}

	if !u.IsMember() {
		return o, errors.Wrapf(ErrNotMember, "user %s", userID)
	}

	return s.orgs.OrganizationByID(ctx, u.OrganizationID)
}

// UpdateMember patches a member of the organization; a changed
// username or email is checked against the organization domains
// before anything is written
func (s *Service) UpdateMember(ctx context.Context, orgID, userID uuid.UUID, p user.Patch) (u user.User, err error) {
	err = s.exclusive(ctx, orgID, func(ctx context.Context) error {
		if _, err = s.GetMember(ctx, orgID, userID); err != nil {
			return err
		}

		u, err = s.users.PatchUser(ctx, userID, p)

		return err
	})

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

// UpdateUser patches any user; members are still domain-checked,
// since the user manager consults this service on every write
func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, p user.Patch) (user.User, error) {
	return s.users.PatchUser(ctx, userID, p)
}

// RemoveMember detaches the user from the organization, keeping the identity
func (s *Service) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	err := s.exclusive(ctx, orgID, func(ctx context.Context) error {
		if _, err := s.GetMember(ctx, orgID, userID); err != nil {
			return err
		}

		g, err := s.groups.BackingGroup(ctx, orgID)
		if err != nil {
			return err
		}

		if err = s.groups.Detach(ctx, g.ID, userID); err != nil {
			return err
		}

		_, err = s.users.SetOrganization(ctx, userID, uuid.Nil)

		return err
	})

	if err != nil {
		return errors.Wrapf(err, "failed to remove member %s from organization %s", userID, orgID)
	}

	s.Logger().Debug(
		"removed member",
		zap.String("organization_id", orgID.String()),
		zap.String("user_id", userID.String()),
	)

	return nil
}

// DeleteUser destroys a user identity along with its group memberships;
// members are deleted while holding their organization
func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	destroy := func(ctx context.Context) error {
		if err := s.groups.DetachAll(ctx, userID); err != nil {
			return err
		}

		return s.users.DeleteUserByID(ctx, userID)
	}

	if u.IsMember() {
		err = s.exclusive(ctx, u.OrganizationID, destroy)
	} else {
		err = s.tx.WithinTransaction(ctx, destroy)
	}

	return err
}
