package organization

import "github.com/pkg/errors"

// errors
var (
	ErrNilStore              = errors.New("organization store is nil")
	ErrNilRegistry           = errors.New("organization registry is nil")
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrDuplicateName         = errors.New("organization name is already taken")
	ErrEmptyName             = errors.New("empty organization name")
	ErrEmptyDomainSet        = errors.New("organization must have at least one domain")
	ErrInvalidDomain         = errors.New("invalid domain")
	ErrZeroID                = errors.New("organization id is zero")
	ErrOrganizationIDChanged = errors.New("organization id cannot be changed")
	ErrOrganizationInUse     = errors.New("organization still has members")
)
