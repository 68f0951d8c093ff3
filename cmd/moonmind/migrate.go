package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/moonmind/moonmind/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|version]",
	Short: "Apply database schema migrations",
	Long: `Apply the embedded goose migrations to the configured database.

Defaults to 'up' when no command is given. The database URL comes from the
config file or MOONMIND_DATABASE_URL.

Examples:
  # Apply all pending migrations
  moonmind migrate

  # Show migration status
  moonmind migrate status`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (config file or MOONMIND_DATABASE_URL)")
	}

	command := "up"
	if len(args) == 1 {
		command = args[0]
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fmt.Printf("Running migration command: %s\n", command)
	if err := migrations.Run(cmd.Context(), db, command); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("✓ Migration %s complete\n", command)
	return nil
}
