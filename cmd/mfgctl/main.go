package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"mfgcore/server/internal/config"
	"mfgcore/server/internal/database"
	"mfgcore/server/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	utils.SetupLogger(cfg.Environment, "warn")

	root := newRootCmd(func(databaseURL string) (*gorm.DB, error) {
		if databaseURL == "" {
			databaseURL = cfg.DatabaseURL
		}
		return database.ConnectPostgres(databaseURL, database.PoolConfig{
			MaxOpenConns:       2,
			SlowQueryThreshold: cfg.DBSlowQueryTimeout,
		})
	}, database.ClosePostgres, cfg.RecallWindowDays)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("mfgctl")
		os.Exit(1)
	}
}
