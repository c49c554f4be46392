package group

import (
	"context"
	"strings"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// PostgresStore keeps groups in postgres
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore returns a group store backed by postgres
func NewPostgresStore(db *database.Postgres) (Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &PostgresStore{db: db}, nil
}

//---------------------------------------------------------------------------
// unexported utility functions
//---------------------------------------------------------------------------

func (s *PostgresStore) get(ctx context.Context, q string, args ...interface{}) (g Group, err error) {
	if err = s.db.Runner(ctx).SelectBySql(q, args...).LoadOneContext(ctx, &g); err != nil {
		if err == dbr.ErrNotFound {
			return g, ErrGroupNotFound
		}

		return g, database.ClassifyPostgresError(err)
	}

	return g, nil
}

func (s *PostgresStore) getMany(ctx context.Context, q string, args ...interface{}) (gs []Group, err error) {
	gs = make([]Group, 0)

	if _, err = s.db.Runner(ctx).SelectBySql(q, args...).LoadContext(ctx, &gs); err != nil {
		return nil, database.ClassifyPostgresError(err)
	}

	return gs, nil
}

func (s *PostgresStore) ids(ctx context.Context, q string, args ...interface{}) (ids []uuid.UUID, err error) {
	ids = make([]uuid.UUID, 0)

	if _, err = s.db.Runner(ctx).SelectBySql(q, args...).LoadContext(ctx, &ids); err != nil {
		return nil, database.ClassifyPostgresError(err)
	}

	return ids, nil
}

//---------------------------------------------------------------------------
// store contract
//---------------------------------------------------------------------------

func (s *PostgresStore) CreateGroup(ctx context.Context, g Group) error {
	_, err := s.db.Runner(ctx).
		InsertInto("groups").
		Columns("id", "name", "description", "created_at").
		Record(&g).
		ExecContext(ctx)

	if constraint, ok := database.UniqueViolation(err); ok && constraint == "groups_name_key" {
		return ErrDuplicateGroup
	}

	return database.ClassifyPostgresError(err)
}

func (s *PostgresStore) FetchGroupByID(ctx context.Context, id uuid.UUID) (Group, error) {
	return s.get(ctx, "SELECT id, name, description, created_at FROM groups WHERE id = ? LIMIT 1", id)
}

func (s *PostgresStore) FetchGroupByName(ctx context.Context, name string) (Group, error) {
	return s.get(ctx, "SELECT id, name, description, created_at FROM groups WHERE name = ? LIMIT 1", name)
}

func (s *PostgresStore) FetchGroupsByName(ctx context.Context, isPartial bool, name string) ([]Group, error) {
	if !isPartial {
		return s.getMany(ctx, "SELECT id, name, description, created_at FROM groups WHERE name = ?", name)
	}

	prefix := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(name) + "%"

	return s.getMany(ctx, "SELECT id, name, description, created_at FROM groups WHERE name LIKE ? ORDER BY name", prefix)
}

// DeleteByID removes the group; relations go with it by cascade
func (s *PostgresStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Runner(ctx).DeleteFrom("groups").Where("id = ?", id).ExecContext(ctx)
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	if ra == 0 {
		return ErrGroupNotFound
	}

	return nil
}

func (s *PostgresStore) CreateRelation(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.db.Runner(ctx).
		InsertBySql("INSERT INTO group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING", groupID, userID).
		ExecContext(ctx)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		if pgErr.ConstraintName == "group_members_user_id_fkey" {
			return ErrMemberNotFound
		}

		return ErrGroupNotFound
	}

	return database.ClassifyPostgresError(err)
}

func (s *PostgresStore) HasRelation(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var n int

	err := s.db.Runner(ctx).
		SelectBySql("SELECT count(*) FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID).
		LoadOneContext(ctx, &n)

	if err != nil {
		return false, database.ClassifyPostgresError(err)
	}

	return n > 0, nil
}

func (s *PostgresStore) FetchMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	return s.ids(ctx, "SELECT user_id FROM group_members WHERE group_id = ?", groupID)
}

func (s *PostgresStore) FetchGroupIDsByMember(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.ids(ctx, "SELECT group_id FROM group_members WHERE user_id = ?", userID)
}

func (s *PostgresStore) DeleteRelation(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.db.Runner(ctx).
		DeleteFrom("group_members").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		ExecContext(ctx)

	return database.ClassifyPostgresError(err)
}

func (s *PostgresStore) DeleteRelationsByMember(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Runner(ctx).
		DeleteFrom("group_members").
		Where("user_id = ?", userID).
		ExecContext(ctx)

	return database.ClassifyPostgresError(err)
}
