package database

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TestDatabaseEnv names the variable holding the postgres dsn used by tests
const TestDatabaseEnv = "ORGKEEPER_TEST_DATABASE"

// BadgerForTesting opens a quiet badger database inside dir
func BadgerForTesting(dir string) (*Badger, error) {
	if !util.IsTestMode() {
		log.Fatal("BadgerForTesting() can only be called during testing")
	}

	return OpenBadger(dir, zap.NewNop())
}

// PostgresForTesting connects to the test database, migrates it and wipes
// every table; ok is false when no test database is configured
func PostgresForTesting(ctx context.Context) (p *Postgres, ok bool, err error) {
	if !util.IsTestMode() {
		log.Fatal("PostgresForTesting() can only be called during testing")
	}

	dsn := strings.TrimSpace(os.Getenv(TestDatabaseEnv))
	if dsn == "" {
		return nil, false, nil
	}

	p, err = OpenPostgres(ctx, dsn, zap.NewNop())
	if err != nil {
		return nil, true, err
	}

	if err = p.Migrate(ctx); err != nil {
		return nil, true, err
	}

	_, err = p.conn.ExecContext(ctx, "TRUNCATE group_members, groups, users, organization_domains, organizations")
	if err != nil {
		return nil, true, errors.Wrap(err, "failed to truncate test database")
	}

	return p, true, nil
}
