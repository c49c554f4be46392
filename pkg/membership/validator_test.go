package membership_test

import (
	"errors"
	"testing"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/membership"
	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestEmailDomain(t *testing.T) {
	a := assert.New(t)

	d, err := membership.EmailDomain("John@ACME.org")
	a.NoError(err)
	a.Equal("acme.org", d)

	// the last '@' wins
	d, err = membership.EmailDomain(`"a@b"@acme.org`)
	a.NoError(err)
	a.Equal("acme.org", d)

	for _, bad := range []string{"", "john", "@acme.org", "john@", "john@not a domain"} {
		_, err = membership.EmailDomain(bad)
		a.True(errors.Is(err, membership.ErrMalformedEmail), bad)
	}
}

func TestValidate(t *testing.T) {
	domains := []string{"acme.org", "ACME.com", " Example.NET. ", "not a domain"}
	member := membership.WriteContext{Op: user.OpCreate, Member: true}

	cases := []struct {
		name  string
		email string
		wc    membership.WriteContext
		err   error
	}{
		{"matching domain", "a@acme.org", member, nil},
		{"case-insensitive match", "a@Acme.COM", member, nil},
		{"stored domain is normalized", "a@example.net", member, nil},
		{"trailing dot on both sides", "a@EXAMPLE.net.", member, nil},
		{"unusable stored domain", "a@notadomain", member, membership.ErrDomainMismatch},
		{"foreign domain", "a@other.org", member, membership.ErrDomainMismatch},
		{"subdomain is not the domain", "a@sub.acme.org", member, membership.ErrDomainMismatch},
		{"malformed email", "acme.org", member, membership.ErrMalformedEmail},
		{"non-members are not checked", "a@other.org", membership.WriteContext{Op: user.OpUpdate}, nil},
		{"reserved write from a member", "a@acme.org", membership.WriteContext{Member: true, ReservedAttributeWrite: true}, membership.ErrReservedAttributeWrite},
		{"reserved write from a non-member", "a@acme.org", membership.WriteContext{ReservedAttributeWrite: true}, membership.ErrReservedAttributeWrite},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := membership.Validate(c.email, domains, c.wc)
			if c.err == nil {
				assert.NoError(t, err)
				return
			}

			assert.True(t, errors.Is(err, c.err), "got %v", err)
		})
	}

	// a member of an organization without domains can't match anything
	assert.True(t, errors.Is(membership.Validate("a@acme.org", nil, member), membership.ErrDomainMismatch))
}

func TestKindOf(t *testing.T) {
	a := assert.New(t)

	a.Equal(membership.KindUnknown, membership.KindOf(nil))
	a.Equal(membership.KindUnknown, membership.KindOf(errors.New("boom")))
	a.Equal(membership.KindNotFound, membership.KindOf(pkgerrors.Wrap(organization.ErrOrganizationNotFound, "x")))
	a.Equal(membership.KindNotFound, membership.KindOf(membership.ErrNotMember))
	a.Equal(membership.KindNotFound, membership.KindOf(user.ErrUserNotFound))
	a.Equal(membership.KindConflict, membership.KindOf(pkgerrors.Wrap(user.ErrEmailTaken, "x")))
	a.Equal(membership.KindConflict, membership.KindOf(organization.ErrDuplicateName))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(membership.ErrDomainMismatch))
	a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(user.ErrReservedAttributeWrite))
	a.Equal(membership.KindEmptyDomainSet, membership.KindOf(organization.ErrEmptyDomainSet))
	a.Equal(membership.KindInvalid, membership.KindOf(organization.ErrInvalidDomain))
	a.Equal(membership.KindInvalid, membership.KindOf(user.ErrUsernameEditNotAllowed))
	a.Equal(membership.KindStorageUnavailable, membership.KindOf(database.Unavailable(errors.New("io"))))
	a.Equal(membership.KindStorageUnavailable, membership.KindOf(lock.ErrNotAcquired))

	// exhausted conflict retries are reported as unavailability
	a.Equal(membership.KindStorageUnavailable, membership.KindOf(database.Unavailable(database.Conflict(errors.New("c")))))

	a.Equal("invalid domain", membership.KindInvalidDomain.String())
}
