package backtest

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// buildRecord aggregates trades into the persisted backtest record
func buildRecord(params Params, tickers []string, consensusFound int, trades []db.TradeRecord) *db.ConsensusBacktest {
	record := &db.ConsensusBacktest{
		ID:                  uuid.New(),
		RuleID:              params.RuleID,
		StartDate:           params.StartDate.UTC(),
		EndDate:             params.EndDate.UTC(),
		TotalConsensusFound: consensusFound,
		ResultsByTicker:     make(map[string]db.TickerStats),
		ConsensusDetails:    trades,
		Status:              "completed",
		CreatedAt:           time.Now().UTC(),
	}
	if len(tickers) > 0 {
		csv := strings.Join(tickers, ",")
		record.Tickers = &csv
	}

	if len(trades) == 0 {
		return record
	}

	var profitSum, lossSum, totalAbs float64
	var maxProfit, maxLoss float64
	for _, t := range trades {
		if t.PnLPct > 0 {
			record.ProfitableCount++
			profitSum += t.PnLPct
		} else {
			record.LossCount++
			lossSum += t.PnLPct
		}
		if t.PnLPct > maxProfit {
			maxProfit = t.PnLPct
		}
		if t.PnLPct < maxLoss {
			maxLoss = t.PnLPct
		}
		totalAbs += t.PnLAbs

		stats := record.ResultsByTicker[t.Ticker]
		stats.Count++
		if t.PnLPct > 0 {
			stats.Profitable++
		}
		stats.TotalPnLPct = round2(stats.TotalPnLPct + t.PnLPct)
		stats.TotalProfitAbs = round2(stats.TotalProfitAbs + t.PnLAbs)
		record.ResultsByTicker[t.Ticker] = stats
	}

	record.WinRate = round2(float64(record.ProfitableCount) / float64(len(trades)) * 100)
	if record.ProfitableCount > 0 {
		record.AvgProfitPct = round2(profitSum / float64(record.ProfitableCount))
	}
	if record.LossCount > 0 {
		record.AvgLossPct = round2(lossSum / float64(record.LossCount))
	}
	record.MaxProfitPct = round2(maxProfit)
	record.MaxLossPct = round2(maxLoss)
	record.TotalProfitAbs = round2(totalAbs)
	record.TotalReturnPct = round2(totalAbs / params.InitialCapital * 100)

	return record
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
