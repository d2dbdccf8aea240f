package indicators

import (
	"errors"
	"testing"
)

func TestOBVSeries(t *testing.T) {
	closes := []float64{10, 11, 11, 10, 12}
	volumes := []float64{100, 200, 300, 400, 500}

	got, err := OBVSeries(closes, volumes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{100, 300, 300, -100, 400}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Errorf("index %d: want %f, got %f", i, want[i], got[i])
		}
	}
}

func TestOBVSignals(t *testing.T) {
	rising := make([]float64, 12)
	falling := make([]float64, 12)
	volumes := make([]float64, 12)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
		volumes[i] = 1000
	}

	tests := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"rising closes accumulate", rising, "accumulation"},
		{"falling closes distribute", falling, "distribution"},
		{"too few bars for trend", rising[:5], "neutral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateOBV(tt.closes, volumes[:len(tt.closes)])
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Signal != tt.want {
				t.Errorf("want %q, got %q", tt.want, got.Signal)
			}
		})
	}
}

func TestOBVFlatClosesAreNeutral(t *testing.T) {
	closes := make([]float64, 12)
	volumes := make([]float64, 12)
	for i := range closes {
		closes[i] = 50
		volumes[i] = 1000
	}

	got, err := CalculateOBV(closes, volumes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != 1000 {
		t.Errorf("flat closes: want OBV pinned at first volume, got %f", got.Value)
	}
	if got.Signal != "neutral" {
		t.Errorf("want neutral, got %q", got.Signal)
	}
}

func TestOBVInsufficientData(t *testing.T) {
	if _, err := OBVSeries([]float64{1}, []float64{100}); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := OBVSeries([]float64{1, 2}, []float64{100}); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected error on length mismatch, got %v", err)
	}
}
