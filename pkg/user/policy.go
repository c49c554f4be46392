package user

import (
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/r3labs/diff"
)

// Policy is the identity schema policy applied on every write
type Policy struct {
	// whether attributes outside of the fixed schema may be written
	UnmanagedAttributes bool

	// whether an existing username may be changed
	EditUsernameAllowed bool
}

// DefaultPolicy allows unmanaged attributes and username edits
func DefaultPolicy() Policy {
	return Policy{
		UnmanagedAttributes: true,
		EditUsernameAllowed: true,
	}
}

// protected returns the fields this policy forbids to change
func (p Policy) protected() map[string]error {
	protected := make(map[string]error)

	if !p.EditUsernameAllowed {
		protected["username"] = ErrUsernameEditNotAllowed
	}

	if !p.UnmanagedAttributes {
		protected["attributes"] = ErrUnmanagedAttributesDisabled
	}

	return protected
}

// checkCreate applies the policy to a new user
func (p Policy) checkCreate(u User) error {
	if u.Attributes.Has(ReservedOrganizationAttribute) {
		return ErrReservedAttributeWrite
	}

	if !p.UnmanagedAttributes && len(u.Attributes) > 0 {
		return ErrUnmanagedAttributesDisabled
	}

	return nil
}

// changelog diffs both states, failing on the first change this policy forbids
func (p Policy) changelog(before, after User) (diff.Changelog, error) {
	return util.ProtectedChangelog(p.protected(), before, after)
}

// reservedWrite tells whether an update touches the organization
// marker, either as an attribute or as the owning organization itself
func reservedWrite(before, after User) bool {
	return after.Attributes.Has(ReservedOrganizationAttribute) || before.OrganizationID != after.OrganizationID
}
