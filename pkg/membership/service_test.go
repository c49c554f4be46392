package membership_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/group"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/membership"
	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	db     *database.Badger
	orgs   *organization.Registry
	users  *user.Manager
	groups *group.Manager
	svc    *membership.Service
}

// serviceForTesting wires the whole engine on a temporary badger
// database; wrap may replace the user store
func serviceForTesting(t *testing.T, locker lock.Locker, wrap func(user.Store) user.Store) *fixture {
	db, err := database.BadgerForTesting(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orgStore, err := organization.NewBadgerStore(db)
	require.NoError(t, err)

	userStore, err := user.NewBadgerStore(db)
	require.NoError(t, err)

	if wrap != nil {
		userStore = wrap(userStore)
	}

	groupStore, err := group.NewBadgerStore(db)
	require.NoError(t, err)

	f := &fixture{db: db}

	f.orgs, err = organization.NewRegistry(orgStore, db)
	require.NoError(t, err)
	require.NoError(t, f.orgs.SetLogger(zap.NewNop()))

	f.users, err = user.NewManager(userStore, db)
	require.NoError(t, err)
	require.NoError(t, f.users.SetLogger(zap.NewNop()))

	f.groups, err = group.NewManager(groupStore, db)
	require.NoError(t, err)
	require.NoError(t, f.groups.SetLogger(zap.NewNop()))

	if locker == nil {
		locker = lock.NewLocal()
	}

	f.svc, err = membership.NewService(f.orgs, f.users, f.groups, db, locker)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetLogger(zap.NewNop()))

	return f
}

func (f *fixture) organization(t *testing.T, name string, domains ...string) organization.Organization {
	o, err := f.svc.CreateOrganization(context.Background(), organization.NewOrganizationObject{
		Name:    name,
		Domains: domains,
	})
	require.NoError(t, err)

	return o
}

func candidate(email string) user.NewUserObject {
	return user.NewUserObject{Email: email}
}

func emailPatch(email string) user.Patch {
	return user.Patch{Email: &email}
}

func TestNewService(t *testing.T) {
	_, err := membership.NewService(nil, nil, nil, nil, nil)
	assert.Equal(t, membership.ErrNilRegistry, err)
}

func TestService_CreateOrganization(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")

	// the backing group comes along
	g, err := f.groups.BackingGroup(ctx, o.ID)
	a.NoError(err)
	a.Equal(group.BackingGroupName(o.ID), g.Name)

	// no domains, no organization
	_, err = f.svc.CreateOrganization(ctx, organization.NewOrganizationObject{Name: "Empty"})
	a.Equal(membership.KindEmptyDomainSet, membership.KindOf(err))

	// a duplicate name leaves no stray group behind
	_, err = f.svc.CreateOrganization(ctx, organization.NewOrganizationObject{Name: "ACME", Domains: []string{"x.org"}})
	a.Equal(membership.KindConflict, membership.KindOf(err))

	gs, err := f.groups.List(ctx, group.BackingGroupPrefix)
	a.NoError(err)
	a.Len(gs, 1)
}

func TestService_AddMember(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org", "acme.com")
	g, err := f.groups.BackingGroup(ctx, o.ID)
	require.NoError(t, err)

	u, err := f.svc.AddMember(ctx, o.ID, candidate("John@Acme.COM"))
	a.NoError(err)
	a.Equal(o.ID, u.OrganizationID)
	a.Equal("john@acme.com", u.Username)

	ok, err := f.groups.IsMember(ctx, g.ID, u.ID)
	a.NoError(err)
	a.True(ok)

	// a foreign domain creates nothing
	_, err = f.svc.AddMember(ctx, o.ID, candidate("jack@other.org"))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	_, err = f.users.UserByEmail(ctx, "jack@other.org")
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	// neither does a malformed one
	_, err = f.svc.AddMember(ctx, o.ID, candidate("jack"))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	// email in use
	_, err = f.svc.AddMember(ctx, o.ID, candidate("john@acme.com"))
	a.Equal(membership.KindConflict, membership.KindOf(err))

	// username in use, even by a non-member
	_, err = f.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
		return user.NewUserObject{Username: "jill"}, nil
	})
	a.NoError(err)

	_, err = f.svc.AddMember(ctx, o.ID, user.NewUserObject{Username: "jill", Email: "jill@acme.org"})
	a.Equal(membership.KindConflict, membership.KindOf(err))

	// unknown organization
	_, err = f.svc.AddMember(ctx, uuid.New(), candidate("jack@acme.org"))
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	// the candidate may not bring its own organization marker
	c := candidate("jack@acme.org")
	c.Attributes = user.Attributes{user.ReservedOrganizationAttribute: {o.ID.String()}}

	_, err = f.svc.AddMember(ctx, o.ID, c)
	a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(err))

	members, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)
	a.Len(members, 1)

	ids, err := f.groups.Members(ctx, g.ID)
	a.NoError(err)
	a.Equal([]uuid.UUID{u.ID}, ids)
}

func TestService_MemberLookups(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	acme := f.organization(t, "Acme", "acme.org")
	other := f.organization(t, "Other", "other.org")

	u, err := f.svc.AddMember(ctx, acme.ID, candidate("john@acme.org"))
	require.NoError(t, err)

	m, err := f.svc.GetMember(ctx, acme.ID, u.ID)
	a.NoError(err)
	a.Equal(u.ID, m.ID)

	_, err = f.svc.GetMember(ctx, other.ID, u.ID)
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	_, err = f.svc.GetMember(ctx, acme.ID, uuid.New())
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	o, err := f.svc.OrganizationForMember(ctx, u.ID)
	a.NoError(err)
	a.Equal(acme.ID, o.ID)

	loner, err := f.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
		return user.NewUserObject{Email: "loner@acme.org"}, nil
	})
	require.NoError(t, err)

	_, err = f.svc.OrganizationForMember(ctx, loner.ID)
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	_, err = f.svc.ListMembers(ctx, uuid.New())
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	members, err := f.svc.ListMembers(ctx, other.ID)
	a.NoError(err)
	a.Empty(members)
}

// create O with acme.org; a@acme.org joins, a@other.org doesn't; the
// generic update path can't move a member to a foreign domain but can
// move it within its own
func TestService_DomainScenario(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "O", "acme.org")

	u, err := f.svc.AddMember(ctx, o.ID, candidate("a@acme.org"))
	a.NoError(err)

	_, err = f.svc.AddMember(ctx, o.ID, candidate("a@other.org"))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	_, err = f.users.UserByEmail(ctx, "a@other.org")
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	// generic identity path
	_, err = f.svc.UpdateUser(ctx, u.ID, emailPatch("a@other.org"))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	stored, err := f.users.UserByID(ctx, u.ID)
	a.NoError(err)
	a.Equal("a@acme.org", stored.Email)

	updated, err := f.svc.UpdateUser(ctx, u.ID, emailPatch("a2@acme.org"))
	a.NoError(err)
	a.Equal("a2@acme.org", updated.Email)
}

func TestService_UpdatePaths(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")
	other := f.organization(t, "Other", "other.org")

	u, err := f.svc.AddMember(ctx, o.ID, candidate("john@acme.org"))
	require.NoError(t, err)

	firstName := "John"

	// the whole patch is rejected, not just the email
	_, err = f.svc.UpdateMember(ctx, o.ID, u.ID, user.Patch{Email: strptr("john@other.org"), FirstName: &firstName})
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	// the user manager itself routes through the same check
	_, err = f.users.PatchUser(ctx, u.ID, emailPatch("john@other.org"))
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	_, _, err = f.users.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
		u.Email = "john@other.org"
		u.Username = "johnny"
		return u, nil
	})
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	stored, err := f.users.UserByID(ctx, u.ID)
	a.NoError(err)
	a.Equal("john@acme.org", stored.Email)
	a.Equal("john@acme.org", stored.Username)
	a.Empty(stored.FirstName)

	// wrong organization
	_, err = f.svc.UpdateMember(ctx, other.ID, u.ID, user.Patch{FirstName: &firstName})
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	// fields other than username and email are not domain-checked
	updated, err := f.svc.UpdateMember(ctx, o.ID, u.ID, user.Patch{FirstName: &firstName})
	a.NoError(err)
	a.Equal("John", updated.FirstName)

	// username change is rechecked against current domains
	updated, err = f.svc.UpdateMember(ctx, o.ID, u.ID, user.Patch{Username: strptr("johnny")})
	a.NoError(err)
	a.Equal("johnny", updated.Username)

	// the organization gives up the domain; members can't touch
	// their username or email until they match again
	_, err = f.svc.UpdateOrganization(ctx, o.ID, func(ctx context.Context, o organization.Organization) (organization.Organization, error) {
		o.Domains = []string{"acme.net"}
		return o, nil
	})
	a.NoError(err)

	_, err = f.svc.UpdateMember(ctx, o.ID, u.ID, user.Patch{Username: strptr("john")})
	a.Equal(membership.KindInvalidDomain, membership.KindOf(err))

	updated, err = f.svc.UpdateMember(ctx, o.ID, u.ID, emailPatch("john@acme.net"))
	a.NoError(err)
	a.Equal("john@acme.net", updated.Email)

	// non-members may use whatever domain
	loner, err := f.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
		return user.NewUserObject{Email: "loner@acme.org"}, nil
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, loner.ID, emailPatch("loner@anywhere.io"))
	a.NoError(err)
}

func TestService_ReservedAttribute(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")
	other := f.organization(t, "Other", "other.org")

	member, err := f.svc.AddMember(ctx, o.ID, candidate("john@acme.org"))
	require.NoError(t, err)

	loner, err := f.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
		return user.NewUserObject{Email: "loner@other.org"}, nil
	})
	require.NoError(t, err)

	hijack := user.Patch{Attributes: user.Attributes{user.ReservedOrganizationAttribute: {other.ID.String()}}}
	unset := user.Patch{Attributes: user.Attributes{user.ReservedOrganizationAttribute: nil}}
	move := user.Patch{OrganizationID: &other.ID}
	detach := user.Patch{FirstName: &member.FirstName, OrganizationID: &uuid.Nil}

	// however permissive the schema is
	f.users.SetPolicy(user.Policy{UnmanagedAttributes: true, EditUsernameAllowed: true})

	for _, p := range []user.Patch{hijack, unset, move, detach} {
		_, err = f.svc.UpdateUser(ctx, member.ID, p)
		a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(err))

		_, err = f.svc.UpdateMember(ctx, o.ID, member.ID, p)
		a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(err))

		_, err = f.svc.UpdateUser(ctx, loner.ID, p)
		a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(err))
	}

	// creating a user carrying the marker
	_, err = f.users.CreateUser(ctx, func(ctx context.Context) (user.NewUserObject, error) {
		return user.NewUserObject{
			Email:      "sneaky@other.org",
			Attributes: user.Attributes{user.ReservedOrganizationAttribute: {other.ID.String()}},
		}, nil
	})
	a.Equal(membership.KindReservedAttributeWrite, membership.KindOf(err))

	stored, err := f.users.UserByID(ctx, member.ID)
	a.NoError(err)
	a.Equal(o.ID, stored.OrganizationID)

	stored, err = f.users.UserByID(ctx, loner.ID)
	a.NoError(err)
	a.False(stored.IsMember())

	members, err := f.svc.ListMembers(ctx, other.ID)
	a.NoError(err)
	a.Empty(members)
}

func TestService_RemoveMember(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")
	g, err := f.groups.BackingGroup(ctx, o.ID)
	require.NoError(t, err)

	u, err := f.svc.AddMember(ctx, o.ID, candidate("john@acme.org"))
	require.NoError(t, err)

	a.NoError(f.svc.RemoveMember(ctx, o.ID, u.ID))

	// still an identity, no longer a member
	stored, err := f.users.UserByID(ctx, u.ID)
	a.NoError(err)
	a.False(stored.IsMember())

	_, err = f.svc.GetMember(ctx, o.ID, u.ID)
	a.Equal(membership.KindNotFound, membership.KindOf(err))

	ok, err := f.groups.IsMember(ctx, g.ID, u.ID)
	a.NoError(err)
	a.False(ok)

	members, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)
	a.Empty(members)

	// removing twice
	a.Equal(membership.KindNotFound, membership.KindOf(f.svc.RemoveMember(ctx, o.ID, u.ID)))

	// a former member is free to take any email
	_, err = f.svc.UpdateUser(ctx, u.ID, emailPatch("john@anywhere.io"))
	a.NoError(err)
}

func TestService_DeleteUser(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")
	g, err := f.groups.BackingGroup(ctx, o.ID)
	require.NoError(t, err)

	u, err := f.svc.AddMember(ctx, o.ID, candidate("john@acme.org"))
	require.NoError(t, err)

	a.NoError(f.svc.DeleteUser(ctx, u.ID))

	ids, err := f.groups.Members(ctx, g.ID)
	a.NoError(err)
	a.Empty(ids)

	members, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)
	a.Empty(members)

	a.Equal(membership.KindNotFound, membership.KindOf(f.svc.DeleteUser(ctx, u.ID)))
}

func TestService_ListMembersIsStable(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")

	for i := 0; i < 3; i++ {
		_, err := f.svc.AddMember(ctx, o.ID, candidate(fmt.Sprintf("user%d@acme.org", i)))
		require.NoError(t, err)
	}

	first, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)

	second, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)

	a.ElementsMatch(ids(first), ids(second))
}

func ids(us []user.User) []uuid.UUID {
	out := make([]uuid.UUID, len(us))
	for i, u := range us {
		out[i] = u.ID
	}

	return out
}

func strptr(s string) *string {
	return &s
}

func TestService_ConcurrentAddSameOrganization(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	o := f.organization(t, "Acme", "acme.org")

	const n = 8

	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AddMember(ctx, o.ID, candidate("same@acme.org"))
		}(i)
	}

	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}

		a.Equal(membership.KindConflict, membership.KindOf(err), "%v", err)
	}

	a.Equal(1, succeeded)

	members, err := f.svc.ListMembers(ctx, o.ID)
	a.NoError(err)
	a.Len(members, 1)
}

func TestService_ConcurrentAddAcrossOrganizations(t *testing.T) {
	a := assert.New(t)
	f := serviceForTesting(t, nil, nil)
	ctx := context.Background()

	// domains may be shared, so the same email fits both
	o1 := f.organization(t, "One", "shared.org")
	o2 := f.organization(t, "Two", "shared.org")

	const n = 6

	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)

	for i := 0; i < n; i++ {
		orgID := o1.ID
		if i%2 == 1 {
			orgID = o2.ID
		}

		wg.Add(1)
		go func(i int, orgID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.AddMember(ctx, orgID, candidate("same@shared.org"))
		}(i, orgID)
	}

	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}

		a.Equal(membership.KindConflict, membership.KindOf(err), "%v", err)
	}

	a.Equal(1, succeeded)

	m1, err := f.svc.ListMembers(ctx, o1.ID)
	a.NoError(err)

	m2, err := f.svc.ListMembers(ctx, o2.ID)
	a.NoError(err)

	a.Equal(1, len(m1)+len(m2))
}
