package member

import (
	"context"
	"net/http"

	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/internal/server/endpoints"
	"github.com/agubarev/orgkeeper/pkg/user"
)

func Post(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	orgID, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	var candidate user.NewUserObject

	if err = endpoints.Decode(r, &candidate); err != nil {
		return nil, 0, err
	}

	u, err := c.Membership().AddMember(ctx, orgID, candidate)
	if err != nil {
		return nil, 0, err
	}

	return u, http.StatusCreated, nil
}

func List(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	orgID, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	members, err := c.Membership().ListMembers(ctx, orgID)
	if err != nil {
		return nil, 0, err
	}

	return members, http.StatusOK, nil
}

func Get(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	orgID, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	userID, err := endpoints.IDParam(r, "userID")
	if err != nil {
		return nil, 0, err
	}

	u, err := c.Membership().GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, 0, err
	}

	return u, http.StatusOK, nil
}

func Put(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	orgID, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	userID, err := endpoints.IDParam(r, "userID")
	if err != nil {
		return nil, 0, err
	}

	var p user.Patch

	if err = endpoints.Decode(r, &p); err != nil {
		return nil, 0, err
	}

	if _, err = c.Membership().UpdateMember(ctx, orgID, userID, p); err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}

// Delete removes the membership, the identity itself stays
func Delete(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	orgID, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	userID, err := endpoints.IDParam(r, "userID")
	if err != nil {
		return nil, 0, err
	}

	if err = c.Membership().RemoveMember(ctx, orgID, userID); err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}
