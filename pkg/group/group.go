package group

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BackingGroupPrefix namespaces the groups that mirror organization membership
const BackingGroupPrefix = "org."

// BackingGroupName returns the deterministic name of an organization's backing group
func BackingGroupName(orgID uuid.UUID) string {
	return BackingGroupPrefix + orgID.String()
}

// Group represents an authorization group
type Group struct {
	ID          uuid.UUID `db:"id" json:"id" valid:"-"`
	Name        string    `db:"name" json:"name" valid:"required,printableascii"`
	Description string    `db:"description" json:"description" valid:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at" valid:"-"`
}

// IsBacking tells whether this group backs an organization
func (g Group) IsBacking() bool {
	return strings.HasPrefix(g.Name, BackingGroupPrefix)
}

// Validate checks whether the group is consistent
func (g Group) Validate() error {
	if g.ID == uuid.Nil {
		return ErrZeroID
	}

	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGroupName
	}

	if _, err := govalidator.ValidateStruct(g); err != nil {
		return errors.Wrapf(ErrInvalidGroupName, "%s", err)
	}

	return nil
}
