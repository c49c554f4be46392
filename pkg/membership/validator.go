package membership

import (
	"strings"

	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
	"github.com/pkg/errors"
)

// WriteContext describes the write an email is being validated for
type WriteContext struct {
	Op user.Op

	// the identity is, or is being made, a member of the organization
	Member bool

	// the client is writing the reserved organization attribute itself
	ReservedAttributeWrite bool
}

// EmailDomain returns the normalized domain part of an email address,
// that is everything after the last '@'
func EmailDomain(email string) (string, error) {
	email = strings.TrimSpace(email)

	i := strings.LastIndex(email, "@")
	if i <= 0 || i == len(email)-1 {
		return "", errors.Wrapf(ErrMalformedEmail, "%q", email)
	}

	domain, err := organization.NormalizeDomain(email[i+1:])
	if err != nil {
		return "", errors.Wrapf(ErrMalformedEmail, "%q", email)
	}

	return domain, nil
}

// Validate decides whether email may be written for an identity under
// the given organization domains; it has no side effects. Writes to the
// reserved attribute are always rejected, identities without
// an organization are always accepted
func Validate(email string, domains []string, wc WriteContext) error {
	if wc.ReservedAttributeWrite {
		return ErrReservedAttributeWrite
	}

	if !wc.Member {
		return nil
	}

	domain, err := EmailDomain(email)
	if err != nil {
		return err
	}

	// an unusable stored domain matches nothing
	for _, d := range domains {
		if d, err = organization.NormalizeDomain(d); err == nil && d == domain {
			return nil
		}
	}

	return errors.Wrapf(ErrDomainMismatch, "%s on %s", domain, wc.Op)
}
