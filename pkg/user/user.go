package user

import (
	"database/sql/driver"
	"sort"
	"strings"
	"time"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReservedOrganizationAttribute is the attribute name under which the
// owning organization is exposed; it is never client-writable
const ReservedOrganizationAttribute = "org.id"

// Attributes are free-form user attributes outside of the fixed schema
type Attributes map[string][]string

// Value implements driver.Valuer
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}

	payload, err := util.JSON.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode attributes")
	}

	return string(payload), nil
}

// Scan implements sql.Scanner
func (a *Attributes) Scan(src interface{}) error {
	var payload []byte

	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		return errors.Errorf("unsupported attributes source type %T", src)
	}

	attrs := make(Attributes)
	if err := util.JSON.Unmarshal(payload, &attrs); err != nil {
		return errors.Wrap(err, "failed to decode attributes")
	}

	if len(attrs) == 0 {
		attrs = nil
	}

	*a = attrs

	return nil
}

// Has tells whether the attribute is present, even with no values
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Clone returns a deep copy
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}

	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = append([]string(nil), v...)
	}

	return c
}

// Names returns sorted attribute names
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// User is a standalone identity, optionally owned by an organization
type User struct {
	ID         uuid.UUID  `db:"id" json:"id" diff:"-"`
	Username   string     `db:"username" json:"username" diff:"username"`
	Email      string     `db:"email" json:"email" diff:"email"`
	FirstName  string     `db:"first_name" json:"first_name" diff:"first_name"`
	LastName   string     `db:"last_name" json:"last_name" diff:"last_name"`
	Enabled    bool       `db:"enabled" json:"enabled" diff:"enabled"`
	Attributes Attributes `db:"attributes" json:"attributes,omitempty" diff:"attributes"`

	// owning organization; system-managed and kept apart from Attributes
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id" diff:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at" diff:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" diff:"-"`
}

// NewUserObject is the input for creating a user
type NewUserObject struct {
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// IsMember tells whether the user belongs to any organization
func (u User) IsMember() bool {
	return u.OrganizationID != uuid.Nil
}

// Sanitize trims and lower-cases identifying fields
func (u *User) Sanitize() {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)

	if len(u.Attributes) == 0 {
		u.Attributes = nil
		return
	}

	attrs := make(Attributes, len(u.Attributes))
	for k, v := range u.Attributes {
		attrs[strings.TrimSpace(k)] = v
	}

	u.Attributes = attrs
}

// Validate checks the user fields; the reserved attribute is the
// manager's business and is not checked here
func (u User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrZeroID
	}

	if u.Username == "" {
		return ErrEmptyUsername
	}

	if strings.ContainsAny(u.Username, " \t\r\n") {
		return errors.Wrapf(ErrInvalidUsername, "%q", u.Username)
	}

	if u.Email != "" && !govalidator.IsEmail(u.Email) {
		return errors.Wrapf(ErrInvalidEmail, "%q", u.Email)
	}

	for name := range u.Attributes {
		if name == "" {
			return ErrEmptyAttributeName
		}
	}

	return nil
}

// matches tells whether any of the searchable fields contain the query
func (u User) matches(query string) bool {
	for _, field := range []string{u.Username, u.Email, strings.ToLower(u.FirstName), strings.ToLower(u.LastName)} {
		if strings.Contains(field, query) {
			return true
		}
	}

	return false
}
