package membership

import (
	"context"
	"errors"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/agubarev/orgkeeper/pkg/group"
	"github.com/agubarev/orgkeeper/pkg/lock"
	"github.com/agubarev/orgkeeper/pkg/organization"
	"github.com/agubarev/orgkeeper/pkg/user"
)

// errors
var (
	ErrNilRegistry     = errors.New("organization registry is nil")
	ErrNilUserManager  = errors.New("user manager is nil")
	ErrNilGroupManager = errors.New("group manager is nil")
	ErrNilTransactor   = errors.New("transactor is nil")
	ErrNilLocker       = errors.New("locker is nil")
	ErrNotMember       = errors.New("user is not a member of this organization")
	ErrMalformedEmail  = errors.New("malformed email address")
	ErrDomainMismatch  = errors.New("email domain does not belong to the organization")

	// the same sentinel the user manager rejects with
	ErrReservedAttributeWrite = user.ErrReservedAttributeWrite
)

// Kind is the outcome category of a failed operation
type Kind uint8

// outcome kinds
const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidDomain
	KindReservedAttributeWrite
	KindEmptyDomainSet
	KindStorageUnavailable
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalidDomain:
		return "invalid domain"
	case KindReservedAttributeWrite:
		return "reserved attribute write"
	case KindEmptyDomainSet:
		return "empty domain set"
	case KindStorageUnavailable:
		return "storage unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	// storage failures first: exhausted retries still carry the conflict they ran into
	{KindStorageUnavailable, []error{
		database.ErrUnavailable,
		lock.ErrNotAcquired,
		context.DeadlineExceeded,
		context.Canceled,
	}},
	{KindReservedAttributeWrite, []error{
		ErrReservedAttributeWrite,
	}},
	{KindInvalidDomain, []error{
		ErrDomainMismatch,
		ErrMalformedEmail,
	}},
	{KindEmptyDomainSet, []error{
		organization.ErrEmptyDomainSet,
	}},
	{KindNotFound, []error{
		ErrNotMember,
		organization.ErrOrganizationNotFound,
		user.ErrUserNotFound,
		user.ErrUnknownOrganization,
		group.ErrGroupNotFound,
		group.ErrMemberNotFound,
	}},
	{KindConflict, []error{
		user.ErrUsernameTaken,
		user.ErrEmailTaken,
		user.ErrUserExists,
		organization.ErrDuplicateName,
		organization.ErrOrganizationInUse,
		group.ErrDuplicateGroup,
	}},
	{KindInvalid, []error{
		organization.ErrInvalidDomain,
		organization.ErrEmptyName,
		organization.ErrOrganizationIDChanged,
		user.ErrEmptyUsername,
		user.ErrInvalidUsername,
		user.ErrInvalidEmail,
		user.ErrEmptyAttributeName,
		user.ErrUnmanagedAttributesDisabled,
		user.ErrUsernameEditNotAllowed,
		user.ErrUserIDChanged,
		group.ErrEmptyGroupName,
		group.ErrInvalidGroupName,
		group.ErrReservedName,
		group.ErrZeroMemberID,
	}},
}

// KindOf classifies an error returned by any operation of this module
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}

	return KindUnknown
}
