package organization

import (
	"context"

	"github.com/google/uuid"
)

// Store describes a storage contract for organizations; every method
// joins the transaction carried by ctx
type Store interface {
	CreateOrganization(ctx context.Context, o Organization) error
	FetchOrganizationByID(ctx context.Context, id uuid.UUID) (Organization, error)
	FetchOrganizationByName(ctx context.Context, name string) (Organization, error)
	FetchOrganizationsByDomain(ctx context.Context, domain string) ([]Organization, error)
	FetchAllOrganizations(ctx context.Context) ([]Organization, error)
	LockOrganization(ctx context.Context, id uuid.UUID) error
	UpdateOrganization(ctx context.Context, before, after Organization) error
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
}

// domainChanges returns the domains only present in before and only present in after
func domainChanges(before, after []string) (removed, added []string) {
	inBefore := make(map[string]bool, len(before))
	for _, d := range before {
		inBefore[d] = true
	}

	inAfter := make(map[string]bool, len(after))
	for _, d := range after {
		inAfter[d] = true

		if !inBefore[d] {
			added = append(added, d)
		}
	}

	for _, d := range before {
		if !inAfter[d] {
			removed = append(removed, d)
		}
	}

	return removed, added
}
