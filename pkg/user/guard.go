package user

import (
	"context"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/r3labs/diff"
)

// Op is the kind of user write
type Op uint8

// write operations
const (
	OpCreate Op = iota
	OpUpdate
	OpAssign
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpAssign:
		return "assign"
	default:
		return "unknown"
	}
}

// Write describes a pending user write as seen by write guards
type Write struct {
	Op        Op
	Before    User
	After     User
	Changelog diff.Changelog

	// the write is a side effect of a sanctioned system operation
	System bool
}

// Changed tells whether the given field is changed by this write;
// every field counts as changed on create
func (w Write) Changed(field string) bool {
	if w.Op == OpCreate {
		return true
	}

	return util.ChangedFields(w.Changelog)[field]
}

// WriteGuard may veto any user write before it reaches the store;
// guards run inside the write's transaction
type WriteGuard interface {
	GuardWrite(ctx context.Context, w Write) error
}

// WriteGuardFunc adapts a function to WriteGuard
type WriteGuardFunc func(ctx context.Context, w Write) error

// GuardWrite implements WriteGuard
func (fn WriteGuardFunc) GuardWrite(ctx context.Context, w Write) error {
	return fn(ctx, w)
}
