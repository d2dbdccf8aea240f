package consensus

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/indicators"
)

// evaluateConditions applies a rule's indicator predicate to a candle
// history. Enabled conditions are ANDed; a condition whose indicator
// could not be computed from the history passes.
func evaluateConditions(cond *db.IndicatorConditions, candles []*db.Candle) bool {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = float64(c.Volume)
	}

	snap, err := indicators.Analyze(closes, volumes)
	if err != nil {
		log.Warn().Err(err).Msg("Indicator snapshot failed, passing conditions")
		return true
	}

	if cond.RSI != nil && cond.RSI.Enabled && snap.RSI != nil {
		if cond.RSI.Min != nil && snap.RSI.Value < *cond.RSI.Min {
			return false
		}
		if cond.RSI.Max != nil && snap.RSI.Value > *cond.RSI.Max {
			return false
		}
	}

	if cond.MACD != nil && cond.MACD.Enabled && snap.MACD != nil {
		if snap.MACD.Signal != cond.MACD.Signal {
			return false
		}
	}

	if cond.Bollinger != nil && cond.Bollinger.Enabled && snap.Bollinger != nil {
		if snap.Bollinger.Signal != cond.Bollinger.Signal {
			return false
		}
	}

	if cond.OBV != nil && cond.OBV.Enabled && snap.OBV != nil {
		if snap.OBV.Signal != cond.OBV.Signal {
			return false
		}
	}

	return true
}
