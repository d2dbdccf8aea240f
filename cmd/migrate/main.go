// Database migration runner.
package main

import (
	"context"
	"database/sql"
	"flag"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dir := flag.String("dir", "migrations", "directory containing migration files")
	status := flag.Bool("status", false, "show migration status instead of applying")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	sqlDB, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	migrator := db.NewMigrator(sqlDB, *dir)

	if *status {
		if err := migrator.Status(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration status")
		}
		return
	}

	if err := migrator.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Msg("Migrations applied")
}
