package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// errors
var (
	ErrNilDatabase   = errors.New("database is nil")
	ErrUnavailable   = errors.New("storage is unavailable")
	ErrConflict      = errors.New("transaction conflict")
	ErrNoTransaction = errors.New("no transaction in context")
)

// storageError attaches a storage category to the original failure,
// keeping the cause reachable for errors.Is and errors.As
type storageError struct {
	kind  error
	cause error
}

func (e *storageError) Error() string { return e.kind.Error() + ": " + e.cause.Error() }

func (e *storageError) Unwrap() error { return e.cause }

func (e *storageError) Is(target error) bool { return target == e.kind }

// Unavailable marks err as a transient storage failure the caller may retry
func Unavailable(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrUnavailable) {
		return err
	}

	return &storageError{kind: ErrUnavailable, cause: err}
}

// Conflict marks err as a transaction conflict, which is retried
// by the transactor before it ever reaches the caller
func Conflict(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConflict) {
		return err
	}

	return &storageError{kind: ErrConflict, cause: err}
}

// IsUnavailable tells whether err is a transient storage failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ClassifyPostgresError sorts driver failures into conflicts (retried
// by the transactor) and unavailability (surfaced to the caller);
// anything else is returned unchanged
func ClassifyPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.SerializationFailure, pgErr.Code == pgerrcode.DeadlockDetected:
			return Conflict(err)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code):
			return Unavailable(err)
		}

		return err
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Unavailable(err)
	}

	return err
}

// UniqueViolation reports the name of the violated unique constraint, if any
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}

	return "", false
}
