package backtest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

type fakeBacktestStore struct {
	rules       map[int64]*db.ConsensusRule
	signals     []*db.ParsedSignal
	instruments map[string]*db.Instrument
	candles     map[string][]*db.Candle

	saved []*db.ConsensusBacktest
}

func newFakeBacktestStore() *fakeBacktestStore {
	return &fakeBacktestStore{
		rules:       make(map[int64]*db.ConsensusRule),
		instruments: make(map[string]*db.Instrument),
		candles:     make(map[string][]*db.Candle),
	}
}

func (s *fakeBacktestStore) GetRule(ctx context.Context, id int64) (*db.ConsensusRule, error) {
	rule, ok := s.rules[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return rule, nil
}

func (s *fakeBacktestStore) GetEntrySignalsInRange(ctx context.Context, from, to time.Time, tickers []string) ([]*db.ParsedSignal, error) {
	allowed := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		allowed[t] = true
	}

	var out []*db.ParsedSignal
	for _, sig := range s.signals {
		if sig.SignalType != db.SignalTypeEntry {
			continue
		}
		if sig.Timestamp.Before(from) || sig.Timestamp.After(to) {
			continue
		}
		if len(allowed) > 0 && !allowed[sig.Ticker] {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *fakeBacktestStore) GetInstrumentByTicker(ctx context.Context, ticker string) (*db.Instrument, error) {
	inst, ok := s.instruments[ticker]
	if !ok {
		return nil, db.ErrNotFound
	}
	return inst, nil
}

func (s *fakeBacktestStore) GetCandles(ctx context.Context, instrumentID string, interval db.CandleInterval, from, to time.Time) ([]*db.Candle, error) {
	var out []*db.Candle
	for _, c := range s.candles[instrumentID] {
		if c.Interval != interval {
			continue
		}
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *fakeBacktestStore) SaveBacktest(ctx context.Context, b *db.ConsensusBacktest) error {
	s.saved = append(s.saved, b)
	return nil
}

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func strictRule(id int64) *db.ConsensusRule {
	return &db.ConsensusRule{
		ID:              id,
		Name:            "strict pair",
		IsActive:        true,
		Priority:        10,
		MinTraders:      2,
		WindowMinutes:   10,
		StrictConsensus: true,
	}
}

func pair(ticker string, dir db.Direction, at time.Time) []*db.ParsedSignal {
	return []*db.ParsedSignal{
		{ID: uuid.New(), Timestamp: at, Author: "alice", Ticker: ticker, Direction: dir, SignalType: db.SignalTypeEntry},
		{ID: uuid.New(), Timestamp: at.Add(4 * time.Minute), Author: "bob", Ticker: ticker, Direction: dir, SignalType: db.SignalTypeEntry},
	}
}

func candle(figi string, at time.Time, open, high, low, close float64) *db.Candle {
	return &db.Candle{
		InstrumentID: figi,
		Interval:     db.IntervalHour,
		Time:         at,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        close,
		Volume:       1000,
	}
}

func defaultParams() Params {
	return Params{
		RuleID:          1,
		StartDate:       testStart.Add(-time.Hour),
		EndDate:         testStart.Add(24 * time.Hour),
		TakeProfitPct:   5,
		StopLossPct:     3,
		HoldingHours:    24,
		InitialCapital:  100000,
		PositionSizePct: 10,
	}
}

func TestRunLongTakeProfit(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	store.signals = pair("SBER", db.DirectionLong, testStart)
	store.instruments["SBER"] = &db.Instrument{FIGI: "BBG004730N88", Ticker: "SBER"}
	store.candles["BBG004730N88"] = []*db.Candle{
		candle("BBG004730N88", testStart, 100, 101, 99, 100),
		candle("BBG004730N88", testStart.Add(time.Hour), 100, 106, 100, 104),
	}

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), defaultParams())
	require.NoError(t, err)

	assert.Equal(t, 1, record.TotalConsensusFound)
	require.Len(t, record.ConsensusDetails, 1)

	trade := record.ConsensusDetails[0]
	assert.Equal(t, db.ExitReasonTakeProfit, trade.ExitReason)
	assert.InDelta(t, 100.0, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 105.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 5.0, trade.PnLPct, 1e-6)
	// 10% of 100k buys 100 shares at 100
	assert.Equal(t, int64(100), trade.Shares)
	assert.InDelta(t, 500.0, trade.PnLAbs, 1e-6)
	assert.InDelta(t, 100500.0, trade.CapitalAfter, 1e-6)

	assert.Equal(t, 1, record.ProfitableCount)
	assert.Zero(t, record.LossCount)
	assert.InDelta(t, 100.0, record.WinRate, 1e-9)
	assert.InDelta(t, 500.0, record.TotalProfitAbs, 1e-6)
	assert.InDelta(t, 0.5, record.TotalReturnPct, 1e-6)
	assert.Equal(t, "completed", record.Status)

	require.Contains(t, record.ResultsByTicker, "SBER")
	byTicker := record.ResultsByTicker["SBER"]
	assert.Equal(t, 1, byTicker.Count)
	assert.Equal(t, 1, byTicker.Profitable)
	assert.InDelta(t, 5.0, byTicker.TotalPnLPct, 1e-6)

	require.Len(t, store.saved, 1)
}

func TestRunShortStopLoss(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	store.signals = pair("GAZP", db.DirectionShort, testStart)
	store.instruments["GAZP"] = &db.Instrument{FIGI: "BBG004730RP0", Ticker: "GAZP"}
	store.candles["BBG004730RP0"] = []*db.Candle{
		candle("BBG004730RP0", testStart, 50, 50.5, 49.5, 50),
		candle("BBG004730RP0", testStart.Add(time.Hour), 50, 52, 50, 51.8),
	}

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), defaultParams())
	require.NoError(t, err)
	require.Len(t, record.ConsensusDetails, 1)

	trade := record.ConsensusDetails[0]
	assert.Equal(t, db.ExitReasonStopLoss, trade.ExitReason)
	assert.InDelta(t, 50.0, trade.EntryPrice, 1e-9)
	// Short stop sits 3% above entry
	assert.InDelta(t, 51.5, trade.ExitPrice, 1e-9)
	assert.InDelta(t, -3.0, trade.PnLPct, 1e-6)
	assert.Less(t, trade.CapitalAfter, 100000.0)

	assert.Zero(t, record.ProfitableCount)
	assert.Equal(t, 1, record.LossCount)
	assert.InDelta(t, -3.0, record.AvgLossPct, 1e-6)
	assert.InDelta(t, -3.0, record.MaxLossPct, 1e-6)
}

func TestRunTimeoutCarriesLastClose(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	store.signals = pair("SBER", db.DirectionLong, testStart)
	store.instruments["SBER"] = &db.Instrument{FIGI: "BBG004730N88", Ticker: "SBER"}
	store.candles["BBG004730N88"] = []*db.Candle{
		candle("BBG004730N88", testStart, 100, 101, 99, 100),
		candle("BBG004730N88", testStart.Add(time.Hour), 100, 102, 99, 101),
		candle("BBG004730N88", testStart.Add(2*time.Hour), 101, 102, 100, 101.5),
	}

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), defaultParams())
	require.NoError(t, err)
	require.Len(t, record.ConsensusDetails, 1)

	trade := record.ConsensusDetails[0]
	assert.Equal(t, db.ExitReasonTimeout, trade.ExitReason)
	assert.InDelta(t, 101.5, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 1.5, trade.PnLPct, 1e-6)
}

func TestRunSkipsUnknownInstrument(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	store.signals = pair("SBER", db.DirectionLong, testStart)

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), defaultParams())
	require.NoError(t, err)

	assert.Equal(t, 1, record.TotalConsensusFound)
	assert.Empty(t, record.ConsensusDetails)
	assert.Zero(t, record.WinRate)
}

func TestRunThreadsCapitalAcrossTrades(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	store.signals = append(
		pair("SBER", db.DirectionLong, testStart),
		pair("SBER", db.DirectionLong, testStart.Add(30*time.Hour))...,
	)
	store.instruments["SBER"] = &db.Instrument{FIGI: "BBG004730N88", Ticker: "SBER"}
	store.candles["BBG004730N88"] = []*db.Candle{
		candle("BBG004730N88", testStart, 100, 101, 99, 100),
		candle("BBG004730N88", testStart.Add(time.Hour), 100, 106, 100, 104),
		candle("BBG004730N88", testStart.Add(30*time.Hour), 100, 101, 99, 100),
		candle("BBG004730N88", testStart.Add(31*time.Hour), 100, 106, 100, 104),
	}

	params := defaultParams()
	params.EndDate = testStart.Add(48 * time.Hour)

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, record.ConsensusDetails, 2)

	first := record.ConsensusDetails[0]
	second := record.ConsensusDetails[1]
	assert.InDelta(t, 100500.0, first.CapitalAfter, 1e-6)
	// Second position sizes off the grown capital: floor(10050/100) = 100
	assert.Equal(t, int64(100), second.Shares)
	assert.InDelta(t, 101000.0, second.CapitalAfter, 1e-6)
	assert.InDelta(t, 1000.0, record.TotalProfitAbs, 1e-6)
}

func TestRunDeterministic(t *testing.T) {
	build := func() *fakeBacktestStore {
		store := newFakeBacktestStore()
		store.rules[1] = strictRule(1)
		store.signals = append(
			pair("SBER", db.DirectionLong, testStart),
			pair("GAZP", db.DirectionShort, testStart.Add(time.Hour))...,
		)
		store.instruments["SBER"] = &db.Instrument{FIGI: "F1", Ticker: "SBER"}
		store.instruments["GAZP"] = &db.Instrument{FIGI: "F2", Ticker: "GAZP"}
		store.candles["F1"] = []*db.Candle{
			candle("F1", testStart, 100, 101, 99, 100),
			candle("F1", testStart.Add(time.Hour), 100, 106, 100, 104),
		}
		store.candles["F2"] = []*db.Candle{
			candle("F2", testStart.Add(time.Hour), 50, 50.5, 49.5, 50),
			candle("F2", testStart.Add(2*time.Hour), 50, 52, 50, 51.8),
		}
		return store
	}

	r1 := NewRunner(build(), config.BacktestConfig{})
	first, err := r1.Run(context.Background(), defaultParams())
	require.NoError(t, err)

	r2 := NewRunner(build(), config.BacktestConfig{})
	second, err := r2.Run(context.Background(), defaultParams())
	require.NoError(t, err)

	assert.Equal(t, first.ConsensusDetails, second.ConsensusDetails)
	assert.Equal(t, first.WinRate, second.WinRate)
	assert.Equal(t, first.TotalProfitAbs, second.TotalProfitAbs)
	assert.Equal(t, first.ResultsByTicker, second.ResultsByTicker)
}

func TestRunRejectsInvalidParams(t *testing.T) {
	store := newFakeBacktestStore()
	store.rules[1] = strictRule(1)
	r := NewRunner(store, config.BacktestConfig{})

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"inverted period", func(p *Params) { p.StartDate, p.EndDate = p.EndDate, p.StartDate }},
		{"negative capital", func(p *Params) { p.InitialCapital = -5 }},
		{"oversized take profit", func(p *Params) { p.TakeProfitPct = 150 }},
		{"zero holding", func(p *Params) { p.HoldingHours = -1 }},
		{"bad ticker", func(p *Params) { p.Tickers = []string{"sber"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := defaultParams()
			tt.mutate(&params)
			_, err := r.Run(context.Background(), params)
			assert.Error(t, err)
		})
	}
}

func TestParamsApplyDefaults(t *testing.T) {
	cfg := config.BacktestConfig{
		TakeProfitPct:   5,
		StopLossPct:     3,
		HoldingHours:    24,
		InitialCapital:  100000,
		PositionSizePct: 10,
	}

	p := Params{RuleID: 1, StartDate: testStart, EndDate: testStart.Add(time.Hour)}
	p.applyDefaults(cfg)

	assert.InDelta(t, 5.0, p.TakeProfitPct, 1e-9)
	assert.InDelta(t, 3.0, p.StopLossPct, 1e-9)
	assert.Equal(t, 24, p.HoldingHours)
	assert.InDelta(t, 100000.0, p.InitialCapital, 1e-9)
	assert.InDelta(t, 10.0, p.PositionSizePct, 1e-9)
}

func TestRuleTickerFilterNarrowsReplay(t *testing.T) {
	store := newFakeBacktestStore()
	rule := strictRule(1)
	filter := "GAZP"
	rule.TickerFilter = &filter
	store.rules[1] = rule
	store.signals = pair("SBER", db.DirectionLong, testStart)

	r := NewRunner(store, config.BacktestConfig{})

	record, err := r.Run(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Zero(t, record.TotalConsensusFound)
	require.NotNil(t, record.Tickers)
	assert.Equal(t, "GAZP", *record.Tickers)
}
