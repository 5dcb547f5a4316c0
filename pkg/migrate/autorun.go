package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// MaybeRunDev brings a dev Postgres up to date at startup when
// GIFTFLOW_AUTO_MIGRATE is on. Other environments and sqlite are left alone.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	switch {
	case !cfg.App.IsDev(), !cfg.FeatureFlags.AutoMigrate:
		return nil
	case DialectFor(cfg.DB) != "postgres":
		logg.Warn(ctx, "dev auto-migrate skipped: migrations are postgres only")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	m, err := New(sqlDB, logg)
	if err != nil {
		return err
	}
	return m.Up(logg.WithField(ctx, "trigger", "dev-autorun"))
}
