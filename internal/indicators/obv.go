package indicators

// OBVResult is the latest on-balance volume with its derived signal
type OBVResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "accumulation", "distribution", "neutral"
}

// The OBV signal compares the latest value against the mean of the last
// ten values with a 5% band
const (
	obvTrendBars = 10
	obvBand      = 0.05
)

// OBVSeries returns the cumulative on-balance volume, seeded with the
// first bar's volume. A flat close contributes zero.
func OBVSeries(closes, volumes []float64) ([]float64, error) {
	if len(closes) != len(volumes) {
		return nil, insufficient("obv", len(closes), len(volumes))
	}
	if len(closes) < 2 {
		return nil, insufficient("obv", 2, len(closes))
	}

	out := make([]float64, len(closes))
	out[0] = volumes[0]
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}

// CalculateOBV returns the latest OBV value and the signal derived from
// its position relative to the ten-bar mean. Histories shorter than ten
// bars read neutral.
func CalculateOBV(closes, volumes []float64) (*OBVResult, error) {
	series, err := OBVSeries(closes, volumes)
	if err != nil {
		return nil, err
	}

	current := last(series)
	signal := "neutral"
	if len(series) >= obvTrendBars {
		var sum float64
		for _, v := range series[len(series)-obvTrendBars:] {
			sum += v
		}
		mean := sum / obvTrendBars
		if current > mean*(1+obvBand) {
			signal = "accumulation"
		} else if current < mean*(1-obvBand) {
			signal = "distribution"
		}
	}

	return &OBVResult{Value: current, Signal: signal}, nil
}
