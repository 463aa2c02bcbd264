package cmd

import (
	"fmt"
	"log/slog"

	"github.com/policydesk/policydesk/db"
	"github.com/policydesk/policydesk/internal/config"
)

// runMigrate runs pending database migrations and exits. Useful for
// deployments that migrate in a separate step before starting the server.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied")
	return nil
}
