package user

import "errors"

// errors
var (
	ErrNilStore                    = errors.New("user store is nil")
	ErrNilGuard                    = errors.New("write guard is nil")
	ErrUserNotFound                = errors.New("user not found")
	ErrUserExists                  = errors.New("user already exists")
	ErrUsernameTaken               = errors.New("username is already taken")
	ErrEmailTaken                  = errors.New("email is already taken")
	ErrEmptyUsername               = errors.New("username is empty")
	ErrInvalidUsername             = errors.New("invalid username")
	ErrInvalidEmail                = errors.New("invalid email address")
	ErrEmptyAttributeName          = errors.New("attribute name is empty")
	ErrZeroID                      = errors.New("object has no id")
	ErrUserIDChanged               = errors.New("user id cannot be changed")
	ErrReservedAttributeWrite      = errors.New("reserved organization attribute cannot be written")
	ErrUnmanagedAttributesDisabled = errors.New("unmanaged attributes are disabled")
	ErrUsernameEditNotAllowed      = errors.New("username cannot be changed")
	ErrUnknownOrganization         = errors.New("referenced organization does not exist")
)
