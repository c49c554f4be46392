package server

import (
	"context"
	"net/http"
	"time"

	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/internal/server/endpoints"
	epgroup "github.com/agubarev/orgkeeper/internal/server/endpoints/group"
	epmember "github.com/agubarev/orgkeeper/internal/server/endpoints/member"
	eporganization "github.com/agubarev/orgkeeper/internal/server/endpoints/organization"
	epuser "github.com/agubarev/orgkeeper/internal/server/endpoints/user"
	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// how long in-flight requests are given on shutdown
const shutdownTimeout = 10 * time.Second

// NewRouter routes the management API
func NewRouter(c *core.Core) chi.Router {
	logger := c.Logger().Named("[server]")

	r := chi.NewRouter()
	r.Use(MiddlewareRecover(logger))
	r.Use(MiddlewareLogger(logger))

	//---------------------------------------------------------------------------
	// API ROUTING (V1)
	//---------------------------------------------------------------------------
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations", func(r chi.Router) {
			r.Method(http.MethodPost, "/", endpoints.NewEndpoint(c, eporganization.Post, "post_organization"))
			r.Method(http.MethodGet, "/", endpoints.NewEndpoint(c, eporganization.List, "list_organizations"))
			r.Method(http.MethodGet, "/members/{userID}/organization", endpoints.NewEndpoint(c, eporganization.ByMember, "get_member_organization"))

			r.Route("/{id}", func(r chi.Router) {
				r.Method(http.MethodGet, "/", endpoints.NewEndpoint(c, eporganization.Get, "get_organization"))
				r.Method(http.MethodPut, "/", endpoints.NewEndpoint(c, eporganization.Put, "put_organization"))
				r.Method(http.MethodDelete, "/", endpoints.NewEndpoint(c, eporganization.Delete, "delete_organization"))

				r.Method(http.MethodPost, "/members", endpoints.NewEndpoint(c, epmember.Post, "post_member"))
				r.Method(http.MethodGet, "/members", endpoints.NewEndpoint(c, epmember.List, "list_members"))
				r.Method(http.MethodGet, "/members/{userID}", endpoints.NewEndpoint(c, epmember.Get, "get_member"))
				r.Method(http.MethodPut, "/members/{userID}", endpoints.NewEndpoint(c, epmember.Put, "put_member"))
				r.Method(http.MethodDelete, "/members/{userID}", endpoints.NewEndpoint(c, epmember.Delete, "delete_member"))
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Method(http.MethodGet, "/", endpoints.NewEndpoint(c, epuser.Search, "search_users"))
			r.Method(http.MethodGet, "/{id}", endpoints.NewEndpoint(c, epuser.Get, "get_user"))
			r.Method(http.MethodPut, "/{id}", endpoints.NewEndpoint(c, epuser.Put, "put_user"))
			r.Method(http.MethodDelete, "/{id}", endpoints.NewEndpoint(c, epuser.Delete, "delete_user"))
		})

		r.Route("/groups", func(r chi.Router) {
			r.Method(http.MethodGet, "/", endpoints.NewEndpoint(c, epgroup.List, "list_groups"))
		})
	})

	return r
}

// Run serves the management API until ctx is cancelled
func Run(ctx context.Context, c *core.Core, addr string) error {
	if c == nil {
		return core.ErrNilCore
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	failed := make(chan error, 1)

	go func() {
		c.Logger().Info("listening", zap.String("addr", addr))
		failed <- srv.ListenAndServe()
	}()

	select {
	case err := <-failed:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	c.Logger().Info("shutting down the server")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(sctx)
}
