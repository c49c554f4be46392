package cmd

import (
	"context"

	"github.com/agubarev/orgkeeper/pkg/database"
	"github.com/spf13/cobra"
)

// migrateCmd applies postgres schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres schema migrations.",
	Long:  `Migrations only apply to the postgres storage driver; badger needs none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPostgres(func(ctx context.Context, db *database.Postgres) error {
			return db.Migrate(ctx)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of every migration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPostgres(func(ctx context.Context, db *database.Postgres) error {
			return db.MigrationStatus(ctx)
		})
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent migration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPostgres(func(ctx context.Context, db *database.Postgres) error {
			return db.Rollback(ctx)
		})
	},
}

func withPostgres(fn func(ctx context.Context, db *database.Postgres) error) error {
	ctx := context.Background()

	c, _, logger, err := initCore(ctx)
	if err != nil {
		return err
	}

	defer logger.Sync()
	defer c.Shutdown()

	db, err := c.Postgres()
	if err != nil {
		return err
	}

	return fn(ctx, db)
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateRollbackCmd)
	rootCmd.AddCommand(migrateCmd)
}
