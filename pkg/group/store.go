package group

import (
	"context"

	"github.com/google/uuid"
)

// Store describes a storage contract for groups and their members;
// every method joins the transaction carried by ctx
type Store interface {
	CreateGroup(ctx context.Context, g Group) error
	FetchGroupByID(ctx context.Context, id uuid.UUID) (Group, error)
	FetchGroupByName(ctx context.Context, name string) (Group, error)

	// FetchGroupsByName returns the exact match, or every group whose
	// name starts with name when isPartial is set
	FetchGroupsByName(ctx context.Context, isPartial bool, name string) ([]Group, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// relations; creating an existing relation or deleting
	// a missing one is not an error
	CreateRelation(ctx context.Context, groupID, userID uuid.UUID) error
	HasRelation(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	FetchMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	FetchGroupIDsByMember(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	DeleteRelation(ctx context.Context, groupID, userID uuid.UUID) error
	DeleteRelationsByMember(ctx context.Context, userID uuid.UUID) error
}
