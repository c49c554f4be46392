package organization

import (
	"context"
	"net/http"

	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/internal/server/endpoints"
	"github.com/agubarev/orgkeeper/pkg/organization"
)

// Update is the body of an organization update; nil fields are left untouched
type Update struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Enabled     *bool    `json:"enabled"`
	Domains     []string `json:"domains"`
}

func Post(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	var obj organization.NewOrganizationObject

	if err = endpoints.Decode(r, &obj); err != nil {
		return nil, 0, err
	}

	o, err := c.Membership().CreateOrganization(ctx, obj)
	if err != nil {
		return nil, 0, err
	}

	return o, http.StatusCreated, nil
}

func List(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	var orgs []organization.Organization

	if domain := r.URL.Query().Get("domain"); domain != "" {
		orgs, err = c.Registry().OrganizationsByDomain(ctx, domain)
	} else {
		orgs, err = c.Registry().List(ctx)
	}

	if err != nil {
		return nil, 0, err
	}

	return orgs, http.StatusOK, nil
}

func Get(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	o, err := c.Registry().OrganizationByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	return o, http.StatusOK, nil
}

func Put(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	var upd Update

	if err = endpoints.Decode(r, &upd); err != nil {
		return nil, 0, err
	}

	_, err = c.Membership().UpdateOrganization(ctx, id, func(ctx context.Context, o organization.Organization) (organization.Organization, error) {
		if upd.Name != nil {
			o.Name = *upd.Name
		}

		if upd.Description != nil {
			o.Description = *upd.Description
		}

		if upd.Enabled != nil {
			o.Enabled = *upd.Enabled
		}

		if upd.Domains != nil {
			o.Domains = upd.Domains
		}

		return o, nil
	})

	if err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}

func Delete(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	if err = c.Membership().DeleteOrganization(ctx, id); err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}

// ByMember returns the organization the user belongs to
func ByMember(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	userID, err := endpoints.IDParam(r, "userID")
	if err != nil {
		return nil, 0, err
	}

	o, err := c.Membership().OrganizationForMember(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	return o, http.StatusOK, nil
}
