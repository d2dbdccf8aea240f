// Candle sync entrypoint. Keeps local instrument and hourly candle
// history current for the configured tickers.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/market"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if len(cfg.MarketData.Tickers) == 0 {
		log.Fatal().Msg("No tickers configured under market_data.tickers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var cache *market.CandleCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = market.NewCandleCache(redisClient, cfg.Redis.GetCacheTTL())
	}

	client := market.NewClient(cfg.MarketData)
	syncer := market.NewSyncer(client, cache, database, cfg.MarketData.Tickers, cfg.MarketData.GetLookback())

	if *once {
		if err := syncer.SyncAll(ctx); err != nil {
			log.Fatal().Err(err).Msg("Sync failed")
		}
		return
	}

	if err := syncer.Run(ctx, cfg.MarketData.GetSyncInterval()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Sync loop failed")
	}
	log.Info().Msg("Sync stopped")
}
