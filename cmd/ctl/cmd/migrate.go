package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/refinekit/internal/db"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(conn)
			return db.RunMigrations(cmd.Context(), conn.DB, cfg.DBDriver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(conn)
			return db.MigrateDown(cmd.Context(), conn.DB, cfg.DBDriver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(conn)

			version, err := db.Version(cmd.Context(), conn.DB, cfg.DBDriver)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	})

	return cmd
}
