package organization

import (
	"context"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const organizationColumns = "id, name, description, enabled, created_at, updated_at"

// PostgresStore keeps organizations in postgres
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore returns an organization store backed by postgres
func NewPostgresStore(db *database.Postgres) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &PostgresStore{db: db}, nil
}

//---------------------------------------------------------------------------
// unexported utility functions
//---------------------------------------------------------------------------

func (s *PostgresStore) get(ctx context.Context, q string, args ...interface{}) (o Organization, err error) {
	r := s.db.Runner(ctx)

	if err = r.SelectBySql(q, args...).LoadOneContext(ctx, &o); err != nil {
		if err == dbr.ErrNotFound {
			return o, ErrOrganizationNotFound
		}

		return o, database.ClassifyPostgresError(err)
	}

	orgs := []Organization{o}
	if err = s.attachDomains(ctx, orgs); err != nil {
		return o, err
	}

	return orgs[0], nil
}

func (s *PostgresStore) getMany(ctx context.Context, q string, args ...interface{}) (orgs []Organization, err error) {
	orgs = make([]Organization, 0)

	if _, err = s.db.Runner(ctx).SelectBySql(q, args...).LoadContext(ctx, &orgs); err != nil {
		return nil, database.ClassifyPostgresError(err)
	}

	if err = s.attachDomains(ctx, orgs); err != nil {
		return nil, err
	}

	return orgs, nil
}

func (s *PostgresStore) attachDomains(ctx context.Context, orgs []Organization) error {
	if len(orgs) == 0 {
		return nil
	}

	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID.String()
	}

	rows := make([]struct {
		OrganizationID uuid.UUID `db:"organization_id"`
		Domain         string    `db:"domain"`
	}, 0)

	_, err := s.db.Runner(ctx).
		SelectBySql("SELECT organization_id, domain FROM organization_domains WHERE organization_id IN ? ORDER BY domain", ids).
		LoadContext(ctx, &rows)

	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	domains := make(map[uuid.UUID][]string, len(orgs))
	for _, row := range rows {
		domains[row.OrganizationID] = append(domains[row.OrganizationID], row.Domain)
	}

	for i := range orgs {
		orgs[i].Domains = domains[orgs[i].ID]
	}

	return nil
}

func (s *PostgresStore) insertDomains(ctx context.Context, id uuid.UUID, domains []string) error {
	if len(domains) == 0 {
		return nil
	}

	stmt := s.db.Runner(ctx).InsertInto("organization_domains").Columns("organization_id", "domain")
	for _, d := range domains {
		stmt = stmt.Values(id, d)
	}

	_, err := stmt.ExecContext(ctx)

	return database.ClassifyPostgresError(err)
}

func (s *PostgresStore) classifyWrite(err error) error {
	if constraint, ok := database.UniqueViolation(err); ok && constraint == "organizations_name_key" {
		return ErrDuplicateName
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return ErrOrganizationInUse
	}

	return database.ClassifyPostgresError(err)
}

//---------------------------------------------------------------------------
// store contract
//---------------------------------------------------------------------------

func (s *PostgresStore) CreateOrganization(ctx context.Context, o Organization) error {
	_, err := s.db.Runner(ctx).
		InsertInto("organizations").
		Columns("id", "name", "description", "enabled", "created_at", "updated_at").
		Record(&o).
		ExecContext(ctx)

	if err != nil {
		return s.classifyWrite(err)
	}

	return s.insertDomains(ctx, o.ID, o.Domains)
}

func (s *PostgresStore) FetchOrganizationByID(ctx context.Context, id uuid.UUID) (Organization, error) {
	return s.get(ctx, "SELECT "+organizationColumns+" FROM organizations WHERE id = ? LIMIT 1", id)
}

func (s *PostgresStore) FetchOrganizationByName(ctx context.Context, name string) (Organization, error) {
	return s.get(ctx, "SELECT "+organizationColumns+" FROM organizations WHERE lower(name) = ? LIMIT 1", nameKey(name))
}

func (s *PostgresStore) FetchOrganizationsByDomain(ctx context.Context, domain string) ([]Organization, error) {
	return s.getMany(
		ctx,
		"SELECT o.id, o.name, o.description, o.enabled, o.created_at, o.updated_at FROM organizations o "+
			"JOIN organization_domains d ON d.organization_id = o.id WHERE d.domain = ? ORDER BY o.name",
		domain,
	)
}

func (s *PostgresStore) FetchAllOrganizations(ctx context.Context) ([]Organization, error) {
	return s.getMany(ctx, "SELECT "+organizationColumns+" FROM organizations ORDER BY name")
}

// LockOrganization takes a row lock held until the surrounding transaction ends
func (s *PostgresStore) LockOrganization(ctx context.Context, id uuid.UUID) error {
	if !database.InTransaction(ctx) {
		return database.ErrNoTransaction
	}

	var locked string

	err := s.db.Runner(ctx).
		SelectBySql("SELECT id FROM organizations WHERE id = ? FOR UPDATE", id).
		LoadOneContext(ctx, &locked)

	if err != nil {
		if err == dbr.ErrNotFound {
			return ErrOrganizationNotFound
		}

		return database.ClassifyPostgresError(err)
	}

	return nil
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, before, after Organization) error {
	if before.ID != after.ID {
		return ErrOrganizationIDChanged
	}

	r := s.db.Runner(ctx)

	res, err := r.Update("organizations").
		Set("name", after.Name).
		Set("description", after.Description).
		Set("enabled", after.Enabled).
		Set("updated_at", after.UpdatedAt).
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
		return ErrOrganizationNotFound
	}

	removed, added := domainChanges(before.Domains, after.Domains)
	if len(removed) > 0 {
		_, err = r.DeleteFrom("organization_domains").
			Where("organization_id = ? AND domain IN ?", after.ID, removed).
			ExecContext(ctx)

		if err != nil {
			return database.ClassifyPostgresError(err)
		}
	}

	return s.insertDomains(ctx, after.ID, added)
}

func (s *PostgresStore) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Runner(ctx).DeleteFrom("organizations").Where("id = ?", id).ExecContext(ctx)
	if err != nil {
		return s.classifyWrite(err)
	}

	ra, err := res.RowsAffected()
	if err != nil {
		return database.ClassifyPostgresError(err)
	}

	if ra == 0 {
		return ErrOrganizationNotFound
	}

	return nil
}
