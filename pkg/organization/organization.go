package organization

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Organization is a tenant owning one or more email domains
type Organization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	Domains     []string  `db:"-" json:"domains"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Sanitize trims the name and normalizes the domain set
func (o *Organization) Sanitize() (err error) {
	o.Name = strings.TrimSpace(o.Name)
	o.Description = strings.TrimSpace(o.Description)

	o.Domains, err = NormalizeDomains(o.Domains)

	return err
}

// Validate checks whether the organization is consistent
func (o Organization) Validate() error {
	if o.ID == uuid.Nil {
		return ErrZeroID
	}

	if o.Name == "" {
		return ErrEmptyName
	}

	if len(o.Domains) == 0 {
		return ErrEmptyDomainSet
	}

	return nil
}

// HasDomain tells whether the domain belongs to this organization
func (o Organization) HasDomain(domain string) bool {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")

	for _, d := range o.Domains {
		if d == domain {
			return true
		}
	}

	return false
}

// NormalizeDomain lower-cases a hostname and strips the trailing dot
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || !govalidator.IsDNSName(d) {
		return "", errors.Wrapf(ErrInvalidDomain, "%q", domain)
	}

	return d, nil
}

// NormalizeDomains normalizes every domain, dropping duplicates
// while keeping the original order
func NormalizeDomains(domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, ErrEmptyDomainSet
	}

	seen := make(map[string]bool, len(domains))
	normalized := make([]string, 0, len(domains))

	for _, domain := range domains {
		d, err := NormalizeDomain(domain)
		if err != nil {
			return nil, err
		}

		if seen[d] {
			continue
		}

		seen[d] = true
		normalized = append(normalized, d)
	}

	return normalized, nil
}

// nameKey is the case-insensitive form under which names are unique
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
