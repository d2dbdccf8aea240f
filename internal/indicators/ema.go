package indicators

// SMASeries returns the simple moving average of prices. Positions before
// period-1 are NaN.
func SMASeries(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, insufficient("sma", 1, period)
	}
	if len(prices) < period {
		return nil, insufficient("sma", period, len(prices))
	}

	out := nanSeries(len(prices))
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMASeries returns the exponential moving average with smoothing
// alpha = 2/(period+1). The series is seeded with the first price, so
// every position holds a value.
func EMASeries(prices []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, insufficient("ema", 1, period)
	}
	if len(prices) == 0 {
		return nil, insufficient("ema", 1, 0)
	}

	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out, nil
}
