package indicators

// MACDResult is the latest MACD state with its derived signal
type MACDResult struct {
	MACD       float64 `json:"macd"`
	SignalLine float64 `json:"signal_line"`
	Histogram  float64 `json:"histogram"`
	Signal     string  `json:"signal"` // "bullish_crossover", "bearish_crossover", "bullish", "bearish"
}

// MACDSeries returns the MACD line (fast EMA minus slow EMA), the signal
// line (EMA of the MACD line) and their difference
func MACDSeries(prices []float64, fast, slow, signalPeriod int) (macd, signalLine, histogram []float64, err error) {
	if len(prices) < slow {
		return nil, nil, nil, insufficient("macd", slow, len(prices))
	}

	fastEMA, err := EMASeries(prices, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	slowEMA, err := EMASeries(prices, slow)
	if err != nil {
		return nil, nil, nil, err
	}

	macd = make([]float64, len(prices))
	for i := range prices {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine, err = EMASeries(macd, signalPeriod)
	if err != nil {
		return nil, nil, nil, err
	}

	histogram = make([]float64, len(prices))
	for i := range prices {
		histogram[i] = macd[i] - signalLine[i]
	}

	return macd, signalLine, histogram, nil
}

// CalculateMACD returns the latest MACD(fast, slow, signalPeriod) state.
// A crossover signal requires the relative order of the MACD and signal
// lines to have flipped on the latest bar.
func CalculateMACD(prices []float64, fast, slow, signalPeriod int) (*MACDResult, error) {
	macd, signalLine, histogram, err := MACDSeries(prices, fast, slow, signalPeriod)
	if err != nil {
		return nil, err
	}

	n := len(macd)
	current, currentSignal := macd[n-1], signalLine[n-1]

	signal := "bearish"
	if current > currentSignal {
		signal = "bullish"
	}
	if n >= 2 {
		prev, prevSignal := macd[n-2], signalLine[n-2]
		if current > currentSignal && prev <= prevSignal {
			signal = "bullish_crossover"
		} else if current < currentSignal && prev >= prevSignal {
			signal = "bearish_crossover"
		}
	}

	return &MACDResult{
		MACD:       current,
		SignalLine: currentSignal,
		Histogram:  histogram[n-1],
		Signal:     signal,
	}, nil
}
