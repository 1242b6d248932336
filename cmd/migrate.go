package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askbase/askbase/db"
	"github.com/askbase/askbase/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		cmd.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
