package indicators

import (
	"errors"
	"testing"
)

func TestMACDHistogramIdentity(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	macd, signalLine, histogram, err := MACDSeries(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range prices {
		if !almostEqual(histogram[i], macd[i]-signalLine[i]) {
			t.Fatalf("index %d: histogram %f != macd-signal %f", i, histogram[i], macd[i]-signalLine[i])
		}
	}
}

func TestMACDRisingTrendIsBullish(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	got, err := CalculateMACD(prices, 12, 26, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MACD <= got.SignalLine {
		t.Fatalf("rising trend: macd %f should exceed signal %f", got.MACD, got.SignalLine)
	}
	if got.Signal != "bullish" {
		t.Errorf("want bullish on sustained rise, got %q", got.Signal)
	}
}

func TestMACDCrossovers(t *testing.T) {
	// fast=1 makes the MACD line track price minus the slow EMA, so a
	// single reversal bar flips the relative order of the lines
	tests := []struct {
		name   string
		prices []float64
		want   string
	}{
		{"bearish crossover", []float64{10, 12, 9}, "bearish_crossover"},
		{"bullish crossover", []float64{10, 8, 11}, "bullish_crossover"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateMACD(tt.prices, 1, 2, 3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Signal != tt.want {
				t.Errorf("want %q, got %q (macd %f, signal line %f)",
					tt.want, got.Signal, got.MACD, got.SignalLine)
			}
		})
	}
}

func TestMACDInsufficientData(t *testing.T) {
	if _, _, _, err := MACDSeries(make([]float64, 25), 12, 26, 9); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
