package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/driveindex/internal/config"
	"github.com/templui/driveindex/internal/db"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(c *config.Config, conn *sqlx.DB) error {
				return db.RunMigrations(conn.DB, c.DBDriver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(c *config.Config, conn *sqlx.DB) error {
				return db.MigrateDown(conn.DB, c.DBDriver)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(c *config.Config, conn *sqlx.DB) error {
				version, err := db.MigrationVersion(conn.DB, c.DBDriver)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), version)
				return err
			})
		},
	})

	return cmd
}

// withDB opens the configured database without migrating it.
func withDB(fn func(c *config.Config, conn *sqlx.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	conn, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()

	return fn(cfg, conn)
}
