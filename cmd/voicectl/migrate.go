package main

import (
	"voice-auth/internal/db/migrate"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, "up")
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Long: `Roll back every migration.

This drops all voice-auth tables, including the audit trail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd, "down")
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDatabaseURL()
		if err != nil {
			return err
		}
		v, dirty, err := migrate.Version(dsn)
		if err != nil {
			return err
		}
		if dirty {
			printf(cmd, "version %d (dirty)\n", v)
			return nil
		}
		printf(cmd, "version %d\n", v)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func runMigration(cmd *cobra.Command, direction string) error {
	dsn, err := resolveDatabaseURL()
	if err != nil {
		return err
	}
	if err := migrate.Run(dsn, direction); err != nil {
		return err
	}
	printf(cmd, "migrate %s: ok\n", direction)
	return nil
}
