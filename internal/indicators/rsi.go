package indicators

// RSIResult is the latest RSI value with its derived signal
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

// RSISeries returns the Wilder-smoothed RSI. The first average gain and
// loss are seeded with the simple mean of the first period changes, so
// positions before period are NaN.
func RSISeries(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, insufficient("rsi", 1, period)
	}
	if len(prices) < period+1 {
		return nil, insufficient("rsi", period+1, len(prices))
	}

	out := nanSeries(len(prices))

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// CalculateRSI returns the latest RSI value and its signal
func CalculateRSI(prices []float64, period int) (*RSIResult, error) {
	series, err := RSISeries(prices, period)
	if err != nil {
		return nil, err
	}

	current := last(series)
	signal := "neutral"
	if current > rsiOverbought {
		signal = "overbought"
	} else if current < rsiOversold {
		signal = "oversold"
	}

	return &RSIResult{Value: current, Signal: signal}, nil
}
