package database

import (
	"context"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the postgres schema up to date
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.prepareMigrations(); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, p.conn.DB, "migrations"); err != nil {
		return ClassifyPostgresError(errors.Wrap(err, "failed to apply migrations"))
	}

	return nil
}

// MigrationStatus logs the state of every known migration
func (p *Postgres) MigrationStatus(ctx context.Context) error {
	if err := p.prepareMigrations(); err != nil {
		return err
	}

	return ClassifyPostgresError(goose.StatusContext(ctx, p.conn.DB, "migrations"))
}

// Rollback reverts the most recent migration
func (p *Postgres) Rollback(ctx context.Context) error {
	if err := p.prepareMigrations(); err != nil {
		return err
	}

	return ClassifyPostgresError(goose.DownContext(ctx, p.conn.DB, "migrations"))
}

func (p *Postgres) prepareMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{p.Logger().Named("[migrate]").Sugar()})

	return errors.Wrap(goose.SetDialect("postgres"), "failed to set migration dialect")
}

// gooseLogger forwards goose output to zap
type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, args ...interface{}) {
	l.Infof(format, args...)
}
