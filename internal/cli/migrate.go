package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database"
	"github.com/tulumbak/courierhook/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply any pending schema migrations and list the applied versions.

Opening the database applies pending migrations automatically; this command
exists for deployments that migrate as a separate step.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	applied, err := migrations.GetApplied(cmd.Context(), db.DB)
	if err != nil {
		return fmt.Errorf("listing applied migrations: %w", err)
	}

	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Printf("Applied migrations: %d\n", len(applied))
	for _, m := range applied {
		fmt.Printf("  %s  (applied %s)\n", m.ID, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}
