package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/r3labs/diff"
)

// Store represents a user storage backend contract; every method
// joins the transaction carried by ctx
type Store interface {
	CreateUser(ctx context.Context, u User) error
	FetchUserByID(ctx context.Context, id uuid.UUID) (User, error)
	FetchUserByUsername(ctx context.Context, username string) (User, error)
	FetchUserByEmail(ctx context.Context, email string) (User, error)
	FetchUsersByOrganization(ctx context.Context, orgID uuid.UUID) ([]User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)

	// UpdateUser persists after; the changelog lists the changed schema
	// fields while organization changes are detected from before and after
	UpdateUser(ctx context.Context, before, after User, changelog diff.Changelog) error
	DeleteUserByID(ctx context.Context, id uuid.UUID) error
}
