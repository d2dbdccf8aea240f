package indicators

import "testing"

func TestAnalyzeShortHistoryLeavesMembersNil(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104}
	volumes := []float64{10, 10, 10, 10, 10}

	snap, err := Analyze(closes, volumes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.RSI != nil {
		t.Error("RSI should be nil for 5 bars")
	}
	if snap.Bollinger != nil {
		t.Error("Bollinger should be nil for 5 bars")
	}
	if snap.MACD != nil {
		t.Error("MACD should be nil for 5 bars")
	}
	if snap.OBV == nil {
		t.Error("OBV should be present for 5 bars")
	}
}

func TestAnalyzeFullHistory(t *testing.T) {
	closes := make([]float64, 60)
	volumes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
		volumes[i] = 1000
	}

	snap, err := Analyze(closes, volumes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.RSI == nil || snap.MACD == nil || snap.Bollinger == nil || snap.OBV == nil {
		t.Fatalf("all indicators should be present for 60 bars: %+v", snap)
	}
	if snap.RSI.Signal != "overbought" {
		t.Errorf("sustained rise should read overbought, got %q", snap.RSI.Signal)
	}
	if snap.OBV.Signal != "accumulation" {
		t.Errorf("sustained rise should read accumulation, got %q", snap.OBV.Signal)
	}
}
