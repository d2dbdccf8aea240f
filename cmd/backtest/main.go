// Backtest runner entrypoint. Replays consensus detection over a
// historical period for one rule and prints the persisted result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/backtest"
	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	ruleID := flag.Int64("rule", 0, "consensus rule ID to backtest")
	fromStr := flag.String("from", "", "period start (YYYY-MM-DD)")
	toStr := flag.String("to", "", "period end (YYYY-MM-DD, default now)")
	tickersCSV := flag.String("tickers", "", "comma-separated tickers (default: rule tickers)")
	takeProfit := flag.Float64("tp", 0, "take profit percent (default from config)")
	stopLoss := flag.Float64("sl", 0, "stop loss percent (default from config)")
	holding := flag.Int("hold", 0, "max holding period in hours (default from config)")
	capital := flag.Float64("capital", 0, "initial capital (default from config)")
	position := flag.Float64("position", 0, "position size percent of capital (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if *ruleID == 0 {
		log.Fatal().Msg("-rule is required")
	}
	if *fromStr == "" {
		log.Fatal().Msg("-from is required")
	}

	startDate, err := time.Parse("2006-01-02", *fromStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -from date")
	}
	endDate := time.Now().UTC()
	if *toStr != "" {
		endDate, err = time.Parse("2006-01-02", *toStr)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -to date")
		}
	}

	var tickers []string
	if *tickersCSV != "" {
		for _, t := range strings.Split(*tickersCSV, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, strings.ToUpper(t))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	runner := backtest.NewRunner(database, cfg.Backtest)

	result, err := runner.Run(ctx, backtest.Params{
		RuleID:          *ruleID,
		StartDate:       startDate,
		EndDate:         endDate,
		Tickers:         tickers,
		TakeProfitPct:   *takeProfit,
		StopLossPct:     *stopLoss,
		HoldingHours:    *holding,
		InitialCapital:  *capital,
		PositionSizePct: *position,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	log.Info().
		Str("backtest_id", result.ID.String()).
		Int("consensus_found", result.TotalConsensusFound).
		Int("trades", len(result.ConsensusDetails)).
		Float64("win_rate", result.WinRate).
		Float64("total_return_pct", result.TotalReturnPct).
		Float64("execution_time_sec", result.ExecutionTimeSec).
		Msg("Backtest complete")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
}
