package membership

import (
	"context"

	"github.com/agubarev/orgkeeper/pkg/group"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DeleteOrganization destroys every member identity, then the backing
// group, then the organization itself, all in one transaction while
// holding the organization; a failure at any step leaves everything as it was
func (s *Service) DeleteOrganization(ctx context.Context, orgID uuid.UUID) error {
	var destroyed int

	err := s.exclusive(ctx, orgID, func(ctx context.Context) error {
		destroyed = 0

		members, err := s.listMembers(ctx, orgID)
		if err != nil {
			return err
		}

		for _, m := range members {
			if err = s.groups.DetachAll(ctx, m.ID); err != nil {
				return err
			}

			if err = s.users.DeleteUserByID(ctx, m.ID); err != nil {
				return err
			}

			destroyed++
		}

		if err = s.groups.DeleteBackingGroup(ctx, orgID); err != nil {
			if !errors.Is(err, group.ErrGroupNotFound) {
				return err
			}

			s.Logger().Warn("organization had no backing group", zap.String("organization_id", orgID.String()))
		}

		return s.orgs.Delete(ctx, orgID)
	})

	if err != nil {
		return errors.Wrapf(err, "failed to delete organization %s", orgID)
	}

	s.Logger().Info(
		"deleted organization",
		zap.String("organization_id", orgID.String()),
		zap.Int("members_destroyed", destroyed),
	)

	return nil
}
