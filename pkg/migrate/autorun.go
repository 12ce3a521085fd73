package migrate

import (
	"context"
	"fmt"

	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

// ApplyOnBoot brings the schema up to date when the service runs in dev with
// STOREFRONT_AUTO_MIGRATE set. Other environments migrate through cmd/migrate.
func ApplyOnBoot(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "migrations", "auto")
	pending, err := runner.Pending(ctx)
	if err != nil {
		return err
	}
	if !pending {
		logg.Debug(ctx, "schema up to date")
		return nil
	}
	return runner.Up(ctx)
}
