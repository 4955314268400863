package main

import (
	"community-campaigns/internal/config"
	"community-campaigns/internal/database"
	"community-campaigns/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	db, err := database.Open(cfg.Database.Driver, cfg.GetDSN())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}

	logger.Info().Str("driver", cfg.Database.Driver).Msg("Migrations applied successfully")
}
