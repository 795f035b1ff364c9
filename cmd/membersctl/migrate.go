package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Open the configured database and apply the schema.

Every statement is idempotent (CREATE ... IF NOT EXISTS), so migrate can
run on every deploy.

Examples:
  membersctl migrate --db ./members.db
  DB_DRIVER=postgres DB_DSN=postgres://localhost/members membersctl migrate`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	// Open migrates too; a second pass is a no-op that surfaces errors here.
	if err := e.store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema applied (%s)\n", e.store.Driver())
	return nil
}
