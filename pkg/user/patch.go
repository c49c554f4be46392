package user

import (
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Patch is a partial user update; nil fields are left untouched and
// a non-nil Attributes replaces the whole attribute set
type Patch struct {
	Username   *string    `json:"username,omitempty"`
	Email      *string    `json:"email,omitempty"`
	FirstName  *string    `json:"first_name,omitempty"`
	LastName   *string    `json:"last_name,omitempty"`
	Enabled    *bool      `json:"enabled,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`

	// never applied; a patch carrying it is a reserved write
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`

	// organization_id was present in the decoded payload, even as null
	organizationSet bool
}

// UnmarshalJSON decodes a patch, remembering whether organization_id
// was sent at all
func (p *Patch) UnmarshalJSON(data []byte) error {
	type plain Patch

	var keys map[string]util.RawJSON
	if err := util.JSON.Unmarshal(data, &keys); err != nil {
		return errors.Wrap(err, "failed to decode user patch")
	}

	var decoded plain
	if err := util.JSON.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "failed to decode user patch")
	}

	*p = Patch(decoded)
	_, p.organizationSet = keys["organization_id"]

	return nil
}

// WritesOrganization tells whether the patch targets the organization marker
func (p Patch) WritesOrganization() bool {
	return p.OrganizationID != nil || p.organizationSet
}

// Apply returns a copy of u with the patch applied
func (p Patch) Apply(u User) User {
	if p.Username != nil {
		u.Username = *p.Username
	}

	if p.Email != nil {
		u.Email = *p.Email
	}

	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}

	if p.LastName != nil {
		u.LastName = *p.LastName
	}

	if p.Enabled != nil {
		u.Enabled = *p.Enabled
	}

	if p.Attributes != nil {
		u.Attributes = p.Attributes.Clone()
	}

	return u
}

// IsEmpty tells whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Username == nil &&
		p.Email == nil &&
		p.FirstName == nil &&
		p.LastName == nil &&
		p.Enabled == nil &&
		p.Attributes == nil &&
		!p.WritesOrganization()
}
