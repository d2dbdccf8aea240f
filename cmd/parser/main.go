// Parser service entrypoint. Parses unprocessed chat messages into
// trade signals and runs consensus detection on each saved signal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/alerts"
	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/consensus"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/events"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
	"github.com/ajitpratap0/tradeconsensus/internal/parser"
	"github.com/ajitpratap0/tradeconsensus/internal/patterns"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	reparse := flag.Bool("reparse", false, "reprocess messages parsed by outdated parser versions")
	force := flag.Bool("force", false, "with -reparse, delete all signals and reprocess everything")
	limit := flag.Int("limit", 0, "maximum messages to process (0 = no limit)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	var notifier consensus.Notifier
	if cfg.Telegram.Enabled {
		telegram, err := alerts.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram alerter")
		}
		notifier = alerts.NewManager(telegram, alerts.NewLogAlerter())
	} else {
		notifier = alerts.NewManager(alerts.NewLogAlerter())
	}

	publisher, err := events.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect event publisher")
	}
	defer publisher.Close()

	detector := consensus.NewDetector(database, cfg.Consensus, notifier, publisher)

	patternStore := patterns.NewStore(database)
	svc := parser.NewService(database, parser.New(patternStore), detector, cfg.Parsing)

	var stats *parser.Stats
	if *reparse {
		stats, err = svc.ReparseAll(ctx, *force)
	} else {
		stats, err = svc.ParseAllUnprocessed(ctx, *limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Parsing run failed")
	}
	if stats != nil {
		log.Info().
			Int("total", stats.TotalProcessed).
			Int("parsed", stats.SuccessfulParses).
			Int("non_trading", stats.NonTrading).
			Int("errors", len(stats.Errors)).
			Msg("Parsing run finished")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if err != nil {
		os.Exit(1)
	}
}
