package group

import (
	"context"
	"net/http"

	"github.com/agubarev/orgkeeper/internal/core"
)

// List returns groups whose name starts with the prefix query parameter
func List(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	gs, err := c.GroupManager().List(ctx, r.URL.Query().Get("prefix"))
	if err != nil {
		return nil, 0, err
	}

	return gs, http.StatusOK, nil
}
