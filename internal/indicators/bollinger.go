package indicators

import "math"

// BollingerResult is the latest band state with its derived signal
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"` // (upper-lower)/middle * 100
	PercentB  float64 `json:"percent_b"` // (close-lower)/(upper-lower)
	Signal    string  `json:"signal"`    // "at_upper_band", "at_lower_band", "within_bands"
}

// BollingerSeries returns the upper, middle and lower bands using an SMA
// middle line and a sample (n-1) standard deviation scaled by k.
// Positions before period-1 are NaN.
func BollingerSeries(prices []float64, period int, k float64) (upper, middle, lower []float64, err error) {
	middle, err = SMASeries(prices, period)
	if err != nil {
		return nil, nil, nil, err
	}

	upper = nanSeries(len(prices))
	lower = nanSeries(len(prices))
	for i := period - 1; i < len(prices); i++ {
		mean := middle[i]
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := prices[j] - mean
			sq += d * d
		}
		stdev := math.Sqrt(sq / float64(period-1))
		upper[i] = mean + k*stdev
		lower[i] = mean - k*stdev
	}

	return upper, middle, lower, nil
}

// CalculateBollinger returns the latest band state. The signal compares
// the latest close against the bands inclusively.
func CalculateBollinger(prices []float64, period int, k float64) (*BollingerResult, error) {
	if period < 2 {
		return nil, insufficient("bollinger", 2, period)
	}

	upper, middle, lower, err := BollingerSeries(prices, period, k)
	if err != nil {
		return nil, err
	}

	price := prices[len(prices)-1]
	up, mid, low := last(upper), last(middle), last(lower)

	signal := "within_bands"
	if price >= up {
		signal = "at_upper_band"
	} else if price <= low {
		signal = "at_lower_band"
	}

	var bandwidth, percentB float64
	if mid != 0 {
		bandwidth = (up - low) / mid * 100
	}
	if up != low {
		percentB = (price - low) / (up - low)
	}

	return &BollingerResult{
		Upper:     up,
		Middle:    mid,
		Lower:     low,
		Bandwidth: bandwidth,
		PercentB:  percentB,
		Signal:    signal,
	}, nil
}
