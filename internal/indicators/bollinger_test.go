package indicators

import (
	"errors"
	"testing"
)

func TestBollingerSampleStdev(t *testing.T) {
	// last window [3,4,5]: mean 4, sample stdev 1
	got, err := CalculateBollinger([]float64{1, 2, 3, 4, 5}, 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got.Middle, 4) {
		t.Errorf("middle: want 4, got %f", got.Middle)
	}
	if !almostEqual(got.Upper, 6) {
		t.Errorf("upper: want 6, got %f", got.Upper)
	}
	if !almostEqual(got.Lower, 2) {
		t.Errorf("lower: want 2, got %f", got.Lower)
	}
	if got.Signal != "within_bands" {
		t.Errorf("want within_bands, got %q", got.Signal)
	}
}

func TestBollingerSignals(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		k      float64
		want   string
	}{
		// k=1 puts the upper band exactly at the last price
		{"touching upper band", []float64{1, 2, 3, 4, 5}, 1, "at_upper_band"},
		{"touching lower band", []float64{5, 4, 3, 2, 1}, 1, "at_lower_band"},
		{"inside bands", []float64{1, 2, 3, 4, 5}, 2, "within_bands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateBollinger(tt.prices, 3, tt.k)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Signal != tt.want {
				t.Errorf("want %q, got %q", tt.want, got.Signal)
			}
		})
	}
}

func TestBollingerInsufficientData(t *testing.T) {
	if _, err := CalculateBollinger(make([]float64, 19), 20, 2); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
