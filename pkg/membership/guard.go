package membership

import (
	"context"

	"github.com/agubarev/orgkeeper/pkg/user"
	"go.uber.org/zap"
)

// GuardWrite implements user.WriteGuard: every non-system write is
// validated, and members changing their username or email are checked
// against the current domains of their organization
func (s *Service) GuardWrite(ctx context.Context, w user.Write) error {
	if w.System {
		return nil
	}

	wc := WriteContext{
		Op:                     w.Op,
		Member:                 w.Before.IsMember(),
		ReservedAttributeWrite: w.After.Attributes.Has(user.ReservedOrganizationAttribute),
	}

	if !wc.Member || wc.ReservedAttributeWrite {
		return Validate(w.After.Email, nil, wc)
	}

	if !w.Changed("email") && !w.Changed("username") {
		return nil
	}

	// the organization must not change domains or disappear underneath
	if err := s.orgs.Lock(ctx, w.Before.OrganizationID); err != nil {
		return err
	}

	o, err := s.orgs.OrganizationByID(ctx, w.Before.OrganizationID)
	if err != nil {
		return err
	}

	if err = Validate(w.After.Email, o.Domains, wc); err != nil {
		s.Logger().Warn(
			"rejected member update",
			zap.String("organization_id", o.ID.String()),
			zap.String("user_id", w.Before.ID.String()),
			zap.String("email", w.After.Email),
			zap.Error(err),
		)

		return err
	}

	return nil
}
