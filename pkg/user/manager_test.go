package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/user"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func managerForTesting(t *testing.T) *user.Manager {
	db, err := database.BadgerForTesting(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := user.NewBadgerStore(db)
	require.NoError(t, err)

	m, err := user.NewManager(s, db)
	require.NoError(t, err)
	require.NoError(t, m.SetLogger(zap.NewNop()))

	return m
}

func newUser(obj user.NewUserObject) func(ctx context.Context) (user.NewUserObject, error) {
	return func(ctx context.Context) (user.NewUserObject, error) {
		return obj, nil
	}
}

func TestManager_CreateUser(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{
		Email:     " John@Acme.org ",
		FirstName: " John ",
	}))
	a.NoError(err)
	a.NotEqual(uuid.Nil, u.ID)
	a.Equal("john@acme.org", u.Email)
	a.Equal("john@acme.org", u.Username)
	a.Equal("John", u.FirstName)
	a.True(u.Enabled)
	a.False(u.IsMember())

	stored, err := m.UserByID(ctx, u.ID)
	a.NoError(err)
	a.Equal(u.Username, stored.Username)

	stored, err = m.UserByEmail(ctx, "JOHN@acme.org")
	a.NoError(err)
	a.Equal(u.ID, stored.ID)

	// username taken
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john@acme.org", Email: "other@acme.org"}))
	a.True(errors.Is(err, user.ErrUsernameTaken))

	// email taken
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "jack", Email: "john@acme.org"}))
	a.True(errors.Is(err, user.ErrEmailTaken))

	// malformed email
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "jack", Email: "jack-at-acme.org"}))
	a.True(errors.Is(err, user.ErrInvalidEmail))

	// nothing to identify by
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{FirstName: "Nobody"}))
	a.True(errors.Is(err, user.ErrEmptyUsername))

	// users without email are fine
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "robot"}))
	a.NoError(err)
}

func TestManager_CreateUserAttributes(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{
		Username:   "john",
		Attributes: user.Attributes{"department": {"sales"}},
	}))
	a.NoError(err)
	a.Equal([]string{"sales"}, u.Attributes["department"])

	// reserved attribute is never accepted
	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{
		Username:   "jack",
		Attributes: user.Attributes{user.ReservedOrganizationAttribute: {uuid.New().String()}},
	}))
	a.True(errors.Is(err, user.ErrReservedAttributeWrite))

	_, err = m.UserByUsername(ctx, "jack")
	a.True(errors.Is(err, user.ErrUserNotFound))

	// unmanaged attributes may be disabled altogether
	m.SetPolicy(user.Policy{UnmanagedAttributes: false, EditUsernameAllowed: true})

	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{
		Username:   "jill",
		Attributes: user.Attributes{"department": {"sales"}},
	}))
	a.True(errors.Is(err, user.ErrUnmanagedAttributesDisabled))
}

func TestManager_UpdateUser(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john", Email: "john@acme.org"}))
	a.NoError(err)

	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "jack", Email: "jack@acme.org"}))
	a.NoError(err)

	updated, changelog, err := m.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
		u.Email = "JOHNNY@acme.org"
		u.LastName = "Doe"
		return u, nil
	})
	a.NoError(err)
	a.Len(changelog, 2)
	a.Equal("johnny@acme.org", updated.Email)
	a.Equal("Doe", updated.LastName)
	a.Equal(u.CreatedAt, updated.CreatedAt)

	// email index moved
	_, err = m.UserByEmail(ctx, "john@acme.org")
	a.True(errors.Is(err, user.ErrUserNotFound))

	stored, err := m.UserByEmail(ctx, "johnny@acme.org")
	a.NoError(err)
	a.Equal(u.ID, stored.ID)

	// colliding email
	_, _, err = m.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
		u.Email = "jack@acme.org"
		return u, nil
	})
	a.True(errors.Is(err, user.ErrEmailTaken))

	// colliding username
	_, err = m.PatchUser(ctx, u.ID, user.Patch{Username: strptr("jack")})
	a.True(errors.Is(err, user.ErrUsernameTaken))

	// no changes is not an error
	_, changelog, err = m.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
		return u, nil
	})
	a.NoError(err)
	a.Empty(changelog)

	// id is immutable
	_, _, err = m.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
		u.ID = uuid.New()
		return u, nil
	})
	a.True(errors.Is(err, user.ErrUserIDChanged))

	// unknown user
	_, err = m.PatchUser(ctx, uuid.New(), user.Patch{LastName: strptr("x")})
	a.True(errors.Is(err, user.ErrUserNotFound))
}

func TestManager_ReservedAttribute(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john", Email: "john@acme.org"}))
	a.NoError(err)

	for _, p := range []user.Policy{
		{UnmanagedAttributes: true, EditUsernameAllowed: true},
		{UnmanagedAttributes: false, EditUsernameAllowed: false},
	} {
		m.SetPolicy(p)

		// setting the marker as an attribute
		_, err = m.PatchUser(ctx, u.ID, user.Patch{
			Attributes: user.Attributes{user.ReservedOrganizationAttribute: {uuid.New().String()}},
		})
		a.True(errors.Is(err, user.ErrReservedAttributeWrite))

		// clearing it
		_, err = m.PatchUser(ctx, u.ID, user.Patch{
			Attributes: user.Attributes{user.ReservedOrganizationAttribute: nil},
		})
		a.True(errors.Is(err, user.ErrReservedAttributeWrite))

		// changing the organization through the generic path
		_, _, err = m.UpdateUser(ctx, u.ID, func(ctx context.Context, u user.User) (user.User, error) {
			u.OrganizationID = uuid.New()
			return u, nil
		})
		a.True(errors.Is(err, user.ErrReservedAttributeWrite))
	}

	stored, err := m.UserByID(ctx, u.ID)
	a.NoError(err)
	a.False(stored.IsMember())
	a.False(stored.Attributes.Has(user.ReservedOrganizationAttribute))
}

func TestManager_Policy(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john", Email: "john@acme.org"}))
	a.NoError(err)

	m.SetPolicy(user.Policy{UnmanagedAttributes: false, EditUsernameAllowed: false})

	_, err = m.PatchUser(ctx, u.ID, user.Patch{Username: strptr("johnny")})
	a.True(errors.Is(err, user.ErrUsernameEditNotAllowed))

	_, err = m.PatchUser(ctx, u.ID, user.Patch{Attributes: user.Attributes{"team": {"a"}}})
	a.True(errors.Is(err, user.ErrUnmanagedAttributesDisabled))

	// other fields are fine
	updated, err := m.PatchUser(ctx, u.ID, user.Patch{FirstName: strptr("John")})
	a.NoError(err)
	a.Equal("John", updated.FirstName)

	m.SetPolicy(user.DefaultPolicy())

	updated, err = m.PatchUser(ctx, u.ID, user.Patch{Username: strptr("johnny"), Attributes: user.Attributes{"team": {"a"}}})
	a.NoError(err)
	a.Equal("johnny", updated.Username)
	a.Equal([]string{"a"}, updated.Attributes["team"])
}

func TestManager_WriteGuard(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	errVetoed := errors.New("vetoed")
	writes := make([]user.Write, 0)

	a.Error(m.AddWriteGuard(nil))
	a.NoError(m.AddWriteGuard(user.WriteGuardFunc(func(ctx context.Context, w user.Write) error {
		writes = append(writes, w)

		if w.Op == user.OpUpdate && w.Changed("email") && w.After.Email == "vetoed@acme.org" {
			return errVetoed
		}

		return nil
	})))

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john", Email: "john@acme.org"}))
	a.NoError(err)
	a.Len(writes, 1)
	a.Equal(user.OpCreate, writes[0].Op)

	// the whole update is rejected
	_, err = m.PatchUser(ctx, u.ID, user.Patch{Email: strptr("vetoed@acme.org"), FirstName: strptr("John")})
	a.True(errors.Is(err, errVetoed))

	stored, err := m.UserByID(ctx, u.ID)
	a.NoError(err)
	a.Equal("john@acme.org", stored.Email)
	a.Empty(stored.FirstName)

	// guards see the changelog
	_, err = m.PatchUser(ctx, u.ID, user.Patch{FirstName: strptr("John")})
	a.NoError(err)

	last := writes[len(writes)-1]
	a.Equal(user.OpUpdate, last.Op)
	a.True(last.Changed("first_name"))
	a.False(last.Changed("email"))

	// organization assignment is a system write
	orgID := uuid.New()
	_, err = m.SetOrganization(ctx, u.ID, orgID)
	a.NoError(err)

	last = writes[len(writes)-1]
	a.Equal(user.OpAssign, last.Op)
	a.True(last.System)
	a.Equal(orgID, last.After.OrganizationID)
}

func TestManager_SetOrganization(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	orgID := uuid.New()
	ids := make(map[uuid.UUID]bool)

	for _, name := range []string{"a", "b", "c"} {
		u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: name}))
		a.NoError(err)

		u, err = m.SetOrganization(ctx, u.ID, orgID)
		a.NoError(err)
		a.Equal(orgID, u.OrganizationID)

		ids[u.ID] = true
	}

	// a non-member
	_, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "d"}))
	a.NoError(err)

	members, err := m.UsersByOrganization(ctx, orgID)
	a.NoError(err)
	a.Len(members, 3)

	for _, u := range members {
		a.True(ids[u.ID])
	}

	// clearing
	u := members[0]
	u, err = m.SetOrganization(ctx, u.ID, uuid.Nil)
	a.NoError(err)
	a.False(u.IsMember())

	members, err = m.UsersByOrganization(ctx, orgID)
	a.NoError(err)
	a.Len(members, 2)

	// the marker survives ordinary updates
	_, err = m.PatchUser(ctx, members[0].ID, user.Patch{LastName: strptr("Doe")})
	a.NoError(err)

	stored, err := m.UserByID(ctx, members[0].ID)
	a.NoError(err)
	a.Equal(orgID, stored.OrganizationID)
}

func TestManager_SearchAndDelete(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	john, err := m.CreateUser(ctx, newUser(user.NewUserObject{Username: "john", Email: "john@acme.org", LastName: "Smith"}))
	a.NoError(err)

	_, err = m.CreateUser(ctx, newUser(user.NewUserObject{Username: "jack", Email: "jack@other.org"}))
	a.NoError(err)

	us, err := m.Search(ctx, "ACME", 0)
	a.NoError(err)
	a.Len(us, 1)
	a.Equal(john.ID, us[0].ID)

	us, err = m.Search(ctx, "smith", 0)
	a.NoError(err)
	a.Len(us, 1)

	us, err = m.Search(ctx, "j", 1)
	a.NoError(err)
	a.Len(us, 1)
	a.Equal("jack", us[0].Username)

	// availability
	a.True(errors.Is(m.CheckAvailability(ctx, "john", "x@acme.org"), user.ErrUsernameTaken))
	a.True(errors.Is(m.CheckAvailability(ctx, "johnny", "JOHN@acme.org"), user.ErrEmailTaken))
	a.True(errors.Is(m.CheckAvailability(ctx, "", "john@acme.org"), user.ErrEmailTaken))
	a.NoError(m.CheckAvailability(ctx, "johnny", "johnny@acme.org"))

	// deletion frees username and email
	a.NoError(m.DeleteUserByID(ctx, john.ID))

	_, err = m.UserByID(ctx, john.ID)
	a.True(errors.Is(err, user.ErrUserNotFound))

	a.NoError(m.CheckAvailability(ctx, "john", "john@acme.org"))
	a.True(errors.Is(m.DeleteUserByID(ctx, john.ID), user.ErrUserNotFound))
}

func strptr(s string) *string {
	return &s
}

func TestManager_PatchUserOrganizationMarker(t *testing.T) {
	a := assert.New(t)
	m := managerForTesting(t)
	ctx := context.Background()

	u, err := m.CreateUser(ctx, newUser(user.NewUserObject{Email: "john@acme.org"}))
	require.NoError(t, err)

	orgID := uuid.New()
	_, err = m.PatchUser(ctx, u.ID, user.Patch{OrganizationID: &orgID})
	a.True(errors.Is(err, user.ErrReservedAttributeWrite))

	nilID := uuid.Nil
	_, err = m.PatchUser(ctx, u.ID, user.Patch{FirstName: strptr("John"), OrganizationID: &nilID})
	a.True(errors.Is(err, user.ErrReservedAttributeWrite))

	var p user.Patch
	require.NoError(t, util.JSON.Unmarshal([]byte(`{"first_name":"John","organization_id":null}`), &p))

	_, err = m.PatchUser(ctx, u.ID, p)
	a.True(errors.Is(err, user.ErrReservedAttributeWrite))

	// nothing was written
	stored, err := m.UserByID(ctx, u.ID)
	a.NoError(err)
	a.Empty(stored.FirstName)
	a.False(stored.IsMember())
}
