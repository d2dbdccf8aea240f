// Package backtest replays consensus detection over a historical period
// and simulates one TP/SL/timeout-managed trade per detected event.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/consensus"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
	"github.com/ajitpratap0/tradeconsensus/internal/validation"
)

// candleLookahead extends the candle fetch past the holding horizon so a
// trade whose horizon falls in a data gap can still exit on the first
// later candle
const candleLookahead = 7 * 24 * time.Hour

// Store is the persistence surface the backtester needs
type Store interface {
	GetRule(ctx context.Context, id int64) (*db.ConsensusRule, error)
	GetEntrySignalsInRange(ctx context.Context, from, to time.Time, tickers []string) ([]*db.ParsedSignal, error)
	GetInstrumentByTicker(ctx context.Context, ticker string) (*db.Instrument, error)
	GetCandles(ctx context.Context, instrumentID string, interval db.CandleInterval, from, to time.Time) ([]*db.Candle, error)
	SaveBacktest(ctx context.Context, b *db.ConsensusBacktest) error
}

// Params configures one backtest run. Zero-valued simulation fields are
// filled from the runner's configured defaults.
type Params struct {
	RuleID          int64
	StartDate       time.Time
	EndDate         time.Time
	Tickers         []string
	TakeProfitPct   float64
	StopLossPct     float64
	HoldingHours    int
	InitialCapital  float64
	PositionSizePct float64
}

func (p *Params) applyDefaults(cfg config.BacktestConfig) {
	if p.TakeProfitPct == 0 {
		p.TakeProfitPct = cfg.TakeProfitPct
	}
	if p.StopLossPct == 0 {
		p.StopLossPct = cfg.StopLossPct
	}
	if p.HoldingHours == 0 {
		p.HoldingHours = cfg.HoldingHours
	}
	if p.InitialCapital == 0 {
		p.InitialCapital = cfg.InitialCapital
	}
	if p.PositionSizePct == 0 {
		p.PositionSizePct = cfg.PositionSizePct
	}
}

func (p *Params) validate() error {
	v := validation.NewValidator()
	v.PositiveInt("rule_id", int(p.RuleID))
	v.TimeRange("period", p.StartDate, p.EndDate)
	v.Percent("take_profit_pct", p.TakeProfitPct, 100)
	v.Percent("stop_loss_pct", p.StopLossPct, 100)
	v.PositiveInt("holding_hours", p.HoldingHours)
	v.Positive("initial_capital", p.InitialCapital)
	v.Percent("position_size_pct", p.PositionSizePct, 100)
	for _, t := range p.Tickers {
		v.Ticker("tickers", t)
	}
	return v.Err()
}

// occurrence is one consensus found during replay
type occurrence struct {
	trigger *db.ParsedSignal
	window  *consensus.Window
}

// Runner executes backtests against historical signals and candles
type Runner struct {
	store Store
	cfg   config.BacktestConfig
	log   zerolog.Logger
}

// NewRunner creates a backtest runner
func NewRunner(store Store, cfg config.BacktestConfig) *Runner {
	return &Runner{
		store: store,
		cfg:   cfg,
		log:   config.NewLogger("backtester"),
	}
}

// Run validates the parameters, replays detection over the period,
// simulates one trade per consensus threading capital sequentially, and
// persists the completed record
func (r *Runner) Run(ctx context.Context, params Params) (*db.ConsensusBacktest, error) {
	started := time.Now()
	defer func() {
		metrics.BacktestDuration.Observe(time.Since(started).Seconds())
	}()

	params.applyDefaults(r.cfg)
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest parameters: %w", err)
	}

	rule, err := r.store.GetRule(ctx, params.RuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", params.RuleID, err)
	}

	tickers := params.Tickers
	if len(tickers) == 0 {
		tickers = rule.Tickers()
	}

	signals, err := r.store.GetEntrySignalsInRange(ctx, params.StartDate, params.EndDate, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to load signals: %w", err)
	}

	r.log.Info().
		Str("rule", rule.Name).
		Time("start", params.StartDate).
		Time("end", params.EndDate).
		Int("signals", len(signals)).
		Msg("Starting backtest")

	events := r.detectEvents(signals, rule)

	capital := params.InitialCapital
	var trades []db.TradeRecord
	for _, ev := range events {
		trade, err := r.simulateTrade(ctx, ev, params, capital)
		if err != nil {
			return nil, err
		}
		if trade == nil {
			continue
		}
		capital += trade.PnLAbs
		trade.CapitalAfter = round2(capital)
		trades = append(trades, *trade)
		metrics.BacktestTrades.WithLabelValues(string(trade.ExitReason)).Inc()
	}

	record := buildRecord(params, tickers, len(events), trades)
	record.ExecutionTimeSec = round2(time.Since(started).Seconds())

	if err := r.store.SaveBacktest(ctx, record); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("backtest_id", record.ID.String()).
		Int("consensus_found", record.TotalConsensusFound).
		Int("wins", record.ProfitableCount).
		Int("losses", record.LossCount).
		Float64("win_rate", record.WinRate).
		Msg("Backtest completed")

	return record, nil
}

// detectEvents replays the detector's window logic over the ordered
// signal set. Signals absorbed into an event are skipped as triggers.
func (r *Runner) detectEvents(signals []*db.ParsedSignal, rule *db.ConsensusRule) []occurrence {
	windowMinutes := rule.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 10
	}
	minTraders := rule.MinTraders
	if minTraders < 2 {
		minTraders = 2
	}

	processed := make(map[uuid.UUID]bool)
	var events []occurrence
	for _, signal := range signals {
		if processed[signal.ID] {
			continue
		}

		win := consensus.FindWindow(signals, signal, windowMinutes, minTraders, rule.StrictConsensus)
		if win == nil {
			continue
		}

		for _, member := range win.Signals {
			processed[member.ID] = true
		}
		events = append(events, occurrence{trigger: signal, window: win})
	}
	return events
}

// simulateTrade runs one consensus event through the candle history.
// A nil trade with nil error means the event is skipped, not failed.
func (r *Runner) simulateTrade(ctx context.Context, ev occurrence, params Params, capital float64) (*db.TradeRecord, error) {
	ticker := ev.trigger.Ticker
	entryTime := ev.trigger.Timestamp

	instrument, err := r.store.GetInstrumentByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			r.log.Debug().Str("ticker", ticker).Msg("No instrument for ticker, skipping trade")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve instrument: %w", err)
	}

	horizon := entryTime.Add(time.Duration(params.HoldingHours) * time.Hour)
	candles, err := r.store.GetCandles(ctx, instrument.FIGI, db.IntervalHour, entryTime, horizon.Add(candleLookahead))
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) == 0 {
		r.log.Debug().Str("ticker", ticker).Time("at", entryTime).Msg("No entry candle, skipping trade")
		return nil, nil
	}

	entryCandle := candles[0]
	entryPrice := entryCandle.Close

	positionValue := capital * params.PositionSizePct / 100
	shares := int64(math.Floor(positionValue / entryPrice))
	if shares <= 0 {
		r.log.Debug().Str("ticker", ticker).Float64("capital", capital).
			Msg("Position too small for one share, skipping trade")
		return nil, nil
	}

	var tpPrice, slPrice float64
	if ev.window.Direction == db.DirectionLong {
		tpPrice = entryPrice * (1 + params.TakeProfitPct/100)
		slPrice = entryPrice * (1 - params.StopLossPct/100)
	} else {
		tpPrice = entryPrice * (1 - params.TakeProfitPct/100)
		slPrice = entryPrice * (1 + params.StopLossPct/100)
	}

	exitReason := db.ExitReasonTimeout
	exitPrice := entryPrice
	exitTime := entryCandle.Time
	walked := false

	for _, c := range candles[1:] {
		if !c.Time.After(entryCandle.Time) {
			continue
		}
		if c.Time.After(horizon) {
			break
		}
		walked = true

		// TP is checked before SL within one bar, which favors the
		// strategy on bars touching both levels
		if ev.window.Direction == db.DirectionLong {
			if c.High >= tpPrice {
				exitPrice, exitReason, exitTime = tpPrice, db.ExitReasonTakeProfit, c.Time
				break
			}
			if c.Low <= slPrice {
				exitPrice, exitReason, exitTime = slPrice, db.ExitReasonStopLoss, c.Time
				break
			}
		} else {
			if c.Low <= tpPrice {
				exitPrice, exitReason, exitTime = tpPrice, db.ExitReasonTakeProfit, c.Time
				break
			}
			if c.High >= slPrice {
				exitPrice, exitReason, exitTime = slPrice, db.ExitReasonStopLoss, c.Time
				break
			}
		}
		exitPrice, exitTime = c.Close, c.Time
	}

	if !walked {
		// No candles inside the holding window; exit on the first
		// candle past the horizon, or skip when the data simply ends
		var fallback *db.Candle
		for _, c := range candles[1:] {
			if c.Time.After(horizon) {
				fallback = c
				break
			}
		}
		if fallback == nil {
			r.log.Debug().Str("ticker", ticker).Time("at", entryTime).
				Msg("No post-entry candles, skipping trade")
			return nil, nil
		}
		exitPrice, exitTime = fallback.Close, fallback.Time
	}

	var pnlPct float64
	if ev.window.Direction == db.DirectionLong {
		pnlPct = (exitPrice - entryPrice) / entryPrice * 100
	} else {
		pnlPct = (entryPrice - exitPrice) / entryPrice * 100
	}
	pnlAbs := float64(shares) * entryPrice * pnlPct / 100

	return &db.TradeRecord{
		Ticker:       ticker,
		Direction:    ev.window.Direction,
		EntryTime:    entryTime,
		ExitTime:     exitTime,
		EntryPrice:   entryPrice,
		ExitPrice:    exitPrice,
		Shares:       shares,
		PnLPct:       round2(pnlPct),
		PnLAbs:       round2(pnlAbs),
		ExitReason:   exitReason,
		TradersCount: ev.window.AuthorCount,
	}, nil
}
