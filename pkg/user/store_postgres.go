package user

import (
	"context"
	"strings"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/r3labs/diff"
)

const userColumns = "id, username, email, first_name, last_name, enabled, attributes, organization_id, created_at, updated_at"

// PostgresStore keeps users in postgres
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore returns a user store backed by postgres
func NewPostgresStore(db *database.Postgres) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &PostgresStore{db: db}, nil
}

//---------------------------------------------------------------------------
// unexported utility functions
//---------------------------------------------------------------------------

func (s *PostgresStore) get(ctx context.Context, q string, args ...interface{}) (u User, err error) {
	if err = s.db.Runner(ctx).SelectBySql(q, args...).LoadOneContext(ctx, &u); err != nil {
		if err == dbr.ErrNotFound {
			return u, ErrUserNotFound
		}

		return u, database.ClassifyPostgresError(err)
	}

	return u, nil
}

func (s *PostgresStore) getMany(ctx context.Context, q string, args ...interface{}) (us []User, err error) {
	us = make([]User, 0)

	if _, err = s.db.Runner(ctx).SelectBySql(q, args...).LoadContext(ctx, &us); err != nil {
		return nil, database.ClassifyPostgresError(err)
	}

	return us, nil
}

// classifyWrite maps constraint violations to user errors
func (s *PostgresStore) classifyWrite(err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case "users_username_key", "users_pkey":
			return ErrUsernameTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return ErrUnknownOrganization
	}

	return database.ClassifyPostgresError(err)
}

// nullable turns a zero id into NULL
func nullable(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}

	return id
}

// escapeLike escapes LIKE wildcards in a search query
func escapeLike(q string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
}

//---------------------------------------------------------------------------
// store contract
//---------------------------------------------------------------------------

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.Runner(ctx).
		InsertInto("users").
		Columns("id", "username", "email", "first_name", "last_name", "enabled", "attributes", "organization_id", "created_at", "updated_at").
		Values(u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Enabled, u.Attributes, nullable(u.OrganizationID), u.CreatedAt, u.UpdatedAt).
		ExecContext(ctx)

	if err != nil {
		return s.classifyWrite(err)
	}

	return nil
}

func (s *PostgresStore) FetchUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.get(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
}

func (s *PostgresStore) FetchUserByUsername(ctx context.Context, username string) (User, error) {
	return s.get(ctx, "SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username)
}

func (s *PostgresStore) FetchUserByEmail(ctx context.Context, email string) (u User, err error) {
	if email == "" {
		return u, ErrUserNotFound
	}

	return s.get(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", email)
}

func (s *PostgresStore) FetchUsersByOrganization(ctx context.Context, orgID uuid.UUID) ([]User, error) {
	return s.getMany(ctx, "SELECT "+userColumns+" FROM users WHERE organization_id = ? ORDER BY username", orgID)
}

func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	pattern := "%" + escapeLike(query) + "%"

	q := "SELECT " + userColumns + " FROM users " +
		"WHERE username LIKE ? OR email LIKE ? OR lower(first_name) LIKE ? OR lower(last_name) LIKE ? " +
		"ORDER BY username"

	args := []interface{}{pattern, pattern, pattern, pattern}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	return s.getMany(ctx, q, args...)
}

// UpdateUser writes only the columns named by the changelog, plus the
// owning organization when it changed
func (s *PostgresStore) UpdateUser(ctx context.Context, before, after User, changelog diff.Changelog) error {
	changes := map[string]interface{}{
		"updated_at": after.UpdatedAt,
	}

	for _, change := range changelog {
		if len(change.Path) == 0 {
			continue
		}

		switch change.Path[0] {
		case "username":
			changes["username"] = after.Username
		case "email":
			changes["email"] = after.Email
		case "first_name":
			changes["first_name"] = after.FirstName
		case "last_name":
			changes["last_name"] = after.LastName
		case "enabled":
			changes["enabled"] = after.Enabled
		case "attributes":
			changes["attributes"] = after.Attributes
		}
	}

	if before.OrganizationID != after.OrganizationID {
		changes["organization_id"] = nullable(after.OrganizationID)
	}

	res, err := s.db.Runner(ctx).
		Update("users").
		SetMap(changes).
		Where("id = ?", after.ID).
		ExecContext(ctx)

	if err != nil {
		return s.classifyWrite(err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	if ra == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (s *PostgresStore) DeleteUserByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Runner(ctx).DeleteFrom("users").Where("id = ?", id).ExecContext(ctx)
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	if ra == 0 {
		return ErrUserNotFound
	}

	return nil
}
