// AngelaMos | 2026
// migrate.go

package main

import (
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/migrations"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(db *core.Database) error {
				return migrations.Down(cmd.Context(), db.DB.DB, steps)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(db *core.Database) error {
					return migrations.Up(cmd.Context(), db.DB.DB)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd, func(db *core.Database) error {
					return migrations.Status(cmd.Context(), db.DB.DB)
				})
			},
		},
	)

	return cmd
}

func withDatabase(cmd *cobra.Command, fn func(db *core.Database) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := core.NewDatabase(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	return fn(db)
}
