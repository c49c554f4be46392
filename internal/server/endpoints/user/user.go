package user

import (
	"context"
	"net/http"

	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/internal/server/endpoints"
	"github.com/agubarev/orgkeeper/pkg/user"
)

func Get(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	u, err := c.UserManager().UserByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	return u, http.StatusOK, nil
}

// Search looks users up by a username or email substring
func Search(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	limit, err := endpoints.IntQuery(r, "limit", user.DefaultSearchLimit)
	if err != nil {
		return nil, 0, err
	}

	us, err := c.UserManager().Search(ctx, r.URL.Query().Get("search"), limit)
	if err != nil {
		return nil, 0, err
	}

	return us, http.StatusOK, nil
}

func Put(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	var p user.Patch

	if err = endpoints.Decode(r, &p); err != nil {
		return nil, 0, err
	}

	if _, err = c.Membership().UpdateUser(ctx, id, p); err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}

func Delete(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	id, err := endpoints.IDParam(r, "id")
	if err != nil {
		return nil, 0, err
	}

	if err = c.Membership().DeleteUser(ctx, id); err != nil {
		return nil, 0, err
	}

	return nil, http.StatusNoContent, nil
}
